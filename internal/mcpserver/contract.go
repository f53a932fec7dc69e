package mcpserver

// JournalGuide describes the journal data exposed by the tools so LLM
// consumers can interpret entries and filters consistently.
const JournalGuide = `# Ansuz Journal Guide

Journal entries are private voice notes. Each entry has:

- ` + "`id`" + ` stable identifier, used by ` + "`read_journal_entry`" + `.
- ` + "`transcript`" + ` exactly what was spoken, never edited after creation.
- ` + "`emotion_label`" + ` one of the labels below.
- ` + "`has_audio`" + ` whether the original recording is retained.
- ` + "`created_at`" + ` RFC 3339 timestamp.

## Emotion labels

| Label | Meaning |
|---|---|
| Calm | neutral or settled; also the default when no label fits |
| Stress | pressure, worry, overload |
| Gratitude | thankfulness toward people or circumstances |
| Sadness | loss, disappointment, low mood |
| Joy | happiness, excitement, celebration |
| Depressive | hopelessness or persistent emptiness |

Labels are case-insensitive in filters.

## Tools

- ` + "`list_journal_entries`" + ` newest first, optional ` + "`emotion`" + `, ` + "`limit`" + ` (max 200), ` + "`offset`" + `.
- ` + "`search_journal`" + ` full-text search over transcripts.
- ` + "`read_journal_entry`" + ` a single entry by id (audio is not returned).
- ` + "`usage_summary`" + ` today's and this month's AI usage counters.

Treat transcripts as sensitive. Do not quote them outside the conversation
that requested them.
`
