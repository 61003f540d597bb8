package mcpserver

// NoteSchemaContract describes the canonical header every processed note
// ends up with, for LLM clients that create or review notes.
const NoteSchemaContract = `# TrevanBox Note Schema

Every note the prehandler writes starts with a YAML header in this exact
field order, followed by a blank line and the Markdown body.

` + "```" + `markdown
---
created: "2024-01-01T10:00:00Z"   # kept from the input, else processing time (RFC 3339)
updated: "2024-01-02T08:30:00Z"   # always the processing time
title: 简洁的中文标题               # at most 15 characters; generated when missing or too long
author: ""
status: sprout                    # sprout | evergreen | discharged
type: reading                     # see below
tags:                             # provenance tag first, at most 7 tags
  - readwise
  - 阅读
description: 100-200 字的中文总结
source: ""
url: https://example.com          # only when set
area: ""                          # only when set
---

Body text.
` + "```" + `

## Types

project, area, resource, journal, note, article, excerpt, reading, reference,
sync, ai. An invalid or missing type falls back to the import directory's
default, then to ` + "`note`" + `.

## Import directories

Notes under a mapped import directory get its provenance tag as the first
tag and its default type:

| Directory | Tag | Type |
|---|---|---|
| follow | follow | article |
| clippings | clippings | excerpt |
| readwise | readwise | reading |
| zotero | zotero | reference |
| webdav | webdav | sync |
| manual | manual | note |
| ainotes | ainotes | ai |

## Tags

- ASCII tags are lower-cased; other scripts are kept as written.
- Duplicates are removed case-insensitively, keeping the first occurrence.
- Provenance tags are never dropped by the tag limit.

## Unknown fields

Fields outside the schema are preserved and written after ` + "`area`" + `
in their original order.

## Review queue

With move-to-inbox enabled, processed notes are moved to
` + "`0-Inbox/pending/`" + `. Name clashes get a ` + "`_YYYYMMDD_HHMMSS`" + ` suffix.
`
