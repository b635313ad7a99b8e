package cli

import (
	"fmt"
	"text/template"
	"time"
)

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"dur": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"ts": func(t time.Time) string {
		return t.Local().Format(time.RFC3339)
	},
}

const usageTemplate = `
LexiSync Client

Usage:
  lexisync [OPTIONS] COMMAND

Options:
  -version            Show version information
  -config PATH        Path to TOML config file
  -server URL         Server URL (overrides config)
  -db PATH            Path to local database (overrides config)

Commands:
  sync                                  Full synchronization with the server
  quick-sync                            Push user progress first, 30s budget
  status                                Show sync state and health
  daemon                                Run background sync, health monitor and diagnostics server
  diagnostics                           Show integrity and performance findings
  export-logs [file]                    Export sync logs as JSON
  put <table> <id|-> <json>             Create or update a record (null clears a field)
  get <table> <id>                      Show a record
  list <table>                          List records of a table
  delete <table> <id>                   Delete a record (soft delete)
  alerts                                List active alerts
  resolve-alert <id>                    Mark an alert resolved
  recover [action-id]                   List or run recovery actions
  reviews                               List conflicts waiting for manual review
  resolve-review <table> <id> <strategy>  Resolve a conflict (server_wins, client_wins, merge)
  dead-letters                          List uploads that exhausted their retries
  requeue <id>                          Move a dead letter back to the queue
  reset                                 Clear sync history and alerts

Tables:
  vocabularies, cards, study_sessions, user_progress, audio_files

Examples:
  lexisync -config ~/.config/lexisync.toml daemon
  lexisync put vocabularies - '{"lemma": "run", "notes": "verb"}'
  lexisync put vocabularies 6f1c '{"notes": null}'
  lexisync recover clear_sync_queue
`

const resultTemplate = `=== {{ .Title }} ===

Session: {{ .Result.SessionID }}
Mode:    {{ .Mode.Mode }} ({{ .Mode.Reason }})
Time:    {{ dur .Result.TotalTime }}
{{- if .Result.Cancelled }}
⚠️  Session was cancelled
{{- else if .Result.Success }}
✓ Synchronization completed successfully!
{{- else }}
✗ Synchronization finished with errors
{{- end }}

Uploaded:   {{ .Totals.Uploaded }}
Downloaded: {{ .Totals.Downloaded }}
Conflicts:  {{ .Totals.Conflicts }}
{{- range $table, $s := .Result.SyncedItems }}
  {{ printf "%-15s" $table }} up {{ $s.Uploaded }}, down {{ $s.Downloaded }}, conflicts {{ $s.Conflicts }}
{{- end }}
{{- if .Result.Warnings }}

Warnings:
{{- range .Result.Warnings }}
  - {{ . }}
{{- end }}
{{- end }}
{{- if .Result.Errors }}

Errors:
{{- range .Result.Errors }}
  - {{ . }}
{{- end }}
{{- end }}
`

const statusTemplate = `=== Sync Status ===

Mode:          {{ .Mode.Mode }} ({{ .Mode.Reason }})
System status: {{ .SystemStatus }}
Syncing:       {{ .IsSyncing }}
Queue:         {{ .QueueSize }} pending, {{ .DeadLetters }} dead letter(s)
{{- if .Reviews }}
Reviews:       {{ .Reviews }} conflict(s) waiting for manual review
{{- end }}

Health:
  Last successful sync: {{ with .HealthMetrics.LastSuccessfulSync }}{{ ts . }}{{ else }}never{{ end }}
  Success rate:         {{ pct .HealthMetrics.SuccessRate }} of {{ .HealthMetrics.TotalSessions }} session(s)
  Conflict rate:        {{ pct .HealthMetrics.ConflictRate }}
  Data integrity:       {{ pct .HealthMetrics.DataIntegrityScore }}
  Avg response time:    {{ dur .HealthMetrics.AverageResponseTime }}
{{- if .ActiveAlerts }}

Active alerts:
{{- range .ActiveAlerts }}
  [{{ .Severity }}] {{ .Title }}: {{ .Message }} ({{ .ID }})
{{- end }}
{{- end }}
{{- if .QueueSize }}

⚠️  {{ .QueueSize }} change(s) waiting to be synchronized. Run 'lexisync sync'.
{{- else }}

✓ All data synchronized with server
{{- end }}
`

const diagnosticsTemplate = `=== Diagnostics ({{ ts .GeneratedAt }}) ===

Status: {{ .Status }}
Queue:  {{ .Metrics.QueueSize }}
Score:  {{ pct .Metrics.DataIntegrityScore }}
{{- if .IntegrityIssues }}

Integrity issues:
{{- range .IntegrityIssues }}
  - {{ .TableName }}: {{ .Detail }}{{ if .RecordIDs }} {{ .RecordIDs }}{{ end }}
{{- end }}
{{- end }}
{{- if .PerformanceIssues }}

Performance issues:
{{- range .PerformanceIssues }}
  - {{ . }}
{{- end }}
{{- end }}
{{- if .RecommendedActions }}

Recommended actions:
{{- range .RecommendedActions }}
  - {{ .ID }}: {{ .Description }}{{ if not .Automated }} (manual){{ end }}
{{- end }}
{{- end }}
{{- if and (not .IntegrityIssues) (not .PerformanceIssues) }}

✓ No issues found
{{- end }}
`

const recordTemplate = `=== {{ .Table }}/{{ .LocalID }} ===

Server ID:  {{ if .ServerID }}{{ .ServerID }}{{ else }}(not uploaded){{ end }}
Updated:    {{ ts .UpdatedAt }}
Pending:    {{ .Dirty }}
{{- range $k, $v := .Fields }}
  {{ $k }}: {{ $v }}
{{- end }}
{{- if .ClearedFields }}
Cleared:    {{ .ClearedFields }}
{{- end }}
`

const recordListTemplate = `=== {{ .Table }} ===
{{ if eq (len .Records) 0 }}
No records found.
{{ else }}
Found {{ len .Records }} record(s):
{{- range .Records }}
- {{ .LocalID }}{{ if .Dirty }} (pending){{ end }}
{{- range $k, $v := .Fields }}
   {{ $k }}: {{ $v }}
{{- end }}
{{- end }}
{{ end -}}
`

const alertsTemplate = `=== Active Alerts ===
{{ if eq (len .) 0 }}
✓ No active alerts
{{ else }}
{{- range . }}
- {{ .ID }} [{{ .Severity }}] {{ .Title }}
   {{ .Message }}
   Raised: {{ ts .Timestamp }}
{{- end }}
{{ end -}}
`

const actionsTemplate = `=== Recovery Actions ===
{{ range . }}
- {{ .ID }} ({{ .Type }}, priority {{ .Priority }}{{ if .Automated }}, automated{{ end }})
   {{ .Description }}
   Conditions: {{ .Conditions }}
{{- end }}
`

const reviewsTemplate = `=== Manual Review ===
{{ if eq (len .) 0 }}
✓ No conflicts waiting for review
{{ else }}
{{- range . }}
- {{ .TableName }}/{{ .RecordID }} detected {{ ts .DetectedAt }}
   local:  {{ with .ClientRecord }}{{ .Fields }}{{ else }}(deleted){{ end }}
   server: {{ with .ServerRecord }}{{ .Fields }}{{ else }}(deleted){{ end }}
{{- end }}

Use 'lexisync resolve-review <table> <id> <strategy>' to settle a conflict.
{{ end -}}
`

const deadLettersTemplate = `=== Dead Letters ===
{{ if eq (len .) 0 }}
✓ No failed uploads
{{ else }}
{{- range . }}
- {{ .ID }} {{ .Action }} {{ .TableName }}/{{ .RecordID }} after {{ .RetryCount }} retries
   {{ .LastError }}
{{- end }}

Use 'lexisync requeue <id>' to retry an upload.
{{ end -}}
`
