package mcpserver

// EntryFormatContract describes the canonical markdown rendering of a
// notebook entry inside the git mirror. LLM consumers that edit mirror files
// out-of-band should follow it so imports round-trip cleanly.
const EntryFormatContract = `# Cooking Lab Notebook Entry Format

Every notebook entry is mirrored to git as one markdown file at
` + "`" + `entries/{id}.md` + "`" + `, where ` + "`" + `{id}` + "`" + ` is ` + "`" + `YYYY-MM-DD_slug` + "`" + `.

## Structure

` + "```" + `markdown
---
id: 2024-03-10_smoked-brisket     # REQUIRED - date + slug, assigned at creation
version: 3                        # bumped on every mutation
created_at: 2024-03-10T09:15:00Z
updated_at: 2024-03-10T21:40:00Z
title: Smoked Brisket             # REQUIRED - 1..200 characters
date: 2024-03-10                  # REQUIRED - session date
tags:                             # OPTIONAL - up to 10
  - beef
  - smoke
gear_ids:                         # OPTIONAL - up to 10
  - offset-smoker
dinner_time: 2024-03-10T18:30:00Z # OPTIONAL - drives calendar synthesis
cooking_method: smoking
difficulty_level: 8               # 1..10
prep_time_minutes: 45
cook_time_minutes: 600
total_time_minutes: 645           # derived, never hand-edited
observations:                     # append-only, in call order
  - at: 2024-03-10T10:05:00Z
    note: fire lit, oak splits
    grill_temp_c: 120
outcomes:                         # free-form merge target
  rating_10: 9
  issues:
    - bark too soft
view_count: 4
---

## Protocol

Free-form markdown describing the plan: trim, rub, fire management,
wrap point, rest. Everything under this heading is the protocol.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "`" + `---` + "`" + ` fences are the first thing
   in the file.
2. **id is immutable.** It never changes after creation, even when the title
   does.
3. **observations are append-only.** Never reorder or rewrite earlier notes;
   add new ones at the end.
4. **outcomes merge.** Tools merge keys into the existing map; removing a key
   by hand is the only way to retract it.
5. **total_time_minutes is derived** from prep and cook times. Edit those
   instead.
6. **The protocol lives in the body** under the ` + "`" + `## Protocol` + "`" + ` heading. A body
   without that heading is treated as protocol wholesale.
7. **Encoding** is UTF-8 with a trailing newline.

## Attachments & Calendars

- Attachments live under ` + "`" + `attachments/{id}/` + "`" + `, one directory per entry.
- Generated ICS calendars live at ` + "`" + `calendars/{id}.ics` + "`" + ` and are synthesized
  from ` + "`" + `dinner_time` + "`" + `; regenerate with the synthesize_calendar tool instead of
  editing them.
- Out-of-band edits to any of these paths are detected and reported; prefer
  the tools, they commit with proper attribution.
`
