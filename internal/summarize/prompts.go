package summarize

import (
	"strings"
	"text/template"
)

// Prompts use an XML-ish tag convention so the model can tell the query,
// document metadata, and document material apart. Chunk and summary numbers
// are 1-based everywhere the model sees them.

const systemPromptText = `You are helping answer a question about a document that is far too long to fit in your context window. The document has been split into chunks, and you will be shown selections of at most {{.TokensPerSelection}} tokens at a time inside a {{.ContextWindow}}-token context window.

Work only from the material you are shown. Keep each response under {{.ResponseTokenLimit}} tokens. Preserve names, numbers, dates, and the order of events whenever they could bear on the question, and never invent content for parts of the document you have not seen.`

const chunkSummaryPromptText = `<USER_QUERY>
{{.UserQuery}}
</USER_QUERY>

<DOCUMENT_INFO total_chunks="{{.TotalChunks}}" />

Below is the content of chunks {{.RangeStart}} through {{.RangeEnd}}:

<CHUNK_CONTENT chunks="{{.RangeStart}}-{{.RangeEnd}}">
{{.Content}}
</CHUNK_CONTENT>

Summarize this section of the document with the user's query in mind. Carry forward every detail that could help answer the query, and note where the section begins or ends mid-topic.`

const recursiveSummaryPromptText = `<USER_QUERY>
{{.UserQuery}}
</USER_QUERY>

<DOCUMENT_INFO total_chunks="{{.TotalChunks}}" />

Below are level {{.Level}} summaries {{.WindowStart}} through {{.WindowEnd}} of {{.LevelTotal}}, together covering chunks {{.RangeStart}} through {{.RangeEnd}}. Consecutive summaries overlap, so the same material may appear more than once.

{{range .Summaries}}<SUMMARY chunks="{{.RangeStart}}-{{.RangeEnd}}">
{{.Text}}
</SUMMARY>
{{end}}
Combine these into a single summary of chunks {{.RangeStart}} through {{.RangeEnd}}, keeping the user's query in mind. Merge overlapping material rather than repeating it, and carry forward every detail that could help answer the query.`

const answerPromptText = `<USER_QUERY>
{{.UserQuery}}
</USER_QUERY>

<DOCUMENT_INFO total_chunks="{{.TotalChunks}}"{{if .Levels}} summary_levels="{{.Levels}}"{{end}} />

Below is a comprehensive summary of the entire document:

<FINAL_SUMMARY>
{{.FinalSummary}}
</FINAL_SUMMARY>

Based on the summary above, please provide a detailed answer to the user's query.
Focus on being accurate, comprehensive, and directly addressing the question asked.`

const rollupInitialPromptText = `<USER_QUERY>
{{.UserQuery}}
</USER_QUERY>

<DOCUMENT_INFO total_chunks="{{.TotalChunks}}" />

You are reading the document one chunk at a time. This is chunk 1 of {{.TotalChunks}}:

<CHUNK_CONTENT chunk="1">
{{.Content}}
</CHUNK_CONTENT>

Write a running summary of the document so far, at most {{.SummaryTokenLimit}} tokens, keeping everything that could help answer the user's query.`

const rollupUpdatePromptText = `<USER_QUERY>
{{.UserQuery}}
</USER_QUERY>

<DOCUMENT_INFO total_chunks="{{.TotalChunks}}" />

Here is your running summary of chunks 1 through {{.PrevChunks}}:

<CURRENT_SUMMARY>
{{.CurrentSummary}}
</CURRENT_SUMMARY>

Here is chunk {{.CurrentChunk}} of {{.TotalChunks}}:

<NEW_CHUNK_CONTENT chunk="{{.CurrentChunk}}">
{{.Content}}
</NEW_CHUNK_CONTENT>

Update the running summary to incorporate this chunk, at most {{.SummaryTokenLimit}} tokens. Keep earlier details that could still help answer the user's query rather than dropping them to make room.`

var (
	systemTmpl           = template.Must(template.New("system").Parse(systemPromptText))
	chunkSummaryTmpl     = template.Must(template.New("chunk_summary").Parse(chunkSummaryPromptText))
	recursiveSummaryTmpl = template.Must(template.New("recursive_summary").Parse(recursiveSummaryPromptText))
	answerTmpl           = template.Must(template.New("answer").Parse(answerPromptText))
	rollupInitialTmpl    = template.Must(template.New("rollup_initial").Parse(rollupInitialPromptText))
	rollupUpdateTmpl     = template.Must(template.New("rollup_update").Parse(rollupUpdatePromptText))
)

type systemData struct {
	ContextWindow      int
	TokensPerSelection int
	ResponseTokenLimit int
}

type chunkSummaryData struct {
	UserQuery   string
	TotalChunks int
	RangeStart  int // 1-based, inclusive
	RangeEnd    int
	Content     string
}

type summaryItem struct {
	RangeStart int // 1-based, inclusive
	RangeEnd   int
	Text       string
}

type recursiveSummaryData struct {
	UserQuery   string
	TotalChunks int
	Level       int // level the input summaries came from
	LevelTotal  int
	WindowStart int // 1-based position within the input level
	WindowEnd   int
	RangeStart  int // 1-based chunk range covered by the window
	RangeEnd    int
	Summaries   []summaryItem
}

type answerData struct {
	UserQuery    string
	TotalChunks  int
	Levels       int // 0 when the summary came from a rollup
	FinalSummary string
}

type rollupInitialData struct {
	UserQuery         string
	TotalChunks       int
	SummaryTokenLimit int
	Content           string
}

type rollupUpdateData struct {
	UserQuery         string
	TotalChunks       int
	CurrentChunk      int // 1-based chunk being folded in
	PrevChunks        int
	SummaryTokenLimit int
	CurrentSummary    string
	Content           string
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
