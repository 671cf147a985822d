// Package ics renders iCalendar events for planned cooking sessions.
package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

const (
	prodID = "-//Cooking Lab Notebook//MCP Server//EN"

	// defaultTotalMinutes pads the event start when an entry carries no
	// time estimate.
	defaultTotalMinutes = 120
)

// Render builds the VCALENDAR text for an entry. The event ends at dinner
// time and starts lead plus total cooking minutes before it.
func Render(e *models.Entry, leadMinutes int) (string, error) {
	if e.DinnerTime == nil {
		return "", fmt.Errorf("ics: entry %s has no dinner time: %w", e.ID, apperr.ErrInvalid)
	}

	total := defaultTotalMinutes
	if e.TotalTimeMinutes != nil {
		total = *e.TotalTimeMinutes
	}
	end := e.DinnerTime.UTC()
	start := end.Add(-time.Duration(leadMinutes+total) * time.Minute)
	now := time.Now().UTC()

	tags := "None"
	if len(e.Tags) > 0 {
		tags = strings.Join(e.Tags, ", ")
	}
	description := fmt.Sprintf(
		"Cooking session for %s\\n\\nPrep time: %s minutes\\nCook time: %s minutes\\nDifficulty: %s/10\\nTags: %s",
		e.Title, orTBD(e.PrepTimeMinutes), orTBD(e.CookTimeMinutes), orTBD(e.DifficultyLevel), tags)

	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\n")
	b.WriteString("VERSION:2.0\n")
	b.WriteString("PRODID:" + prodID + "\n")
	b.WriteString("CALSCALE:GREGORIAN\n")
	b.WriteString("METHOD:PUBLISH\n")
	b.WriteString("BEGIN:VEVENT\n")
	b.WriteString("UID:" + uuid.NewString() + "\n")
	b.WriteString("DTSTART:" + Timestamp(start) + "\n")
	b.WriteString("DTEND:" + Timestamp(end) + "\n")
	b.WriteString("SUMMARY:" + e.Title + "\n")
	b.WriteString("DESCRIPTION:" + description + "\n")
	b.WriteString("LOCATION:Kitchen\n")
	b.WriteString("CATEGORIES:COOKING,LAB_NOTEBOOK\n")
	b.WriteString("CREATED:" + Timestamp(now) + "\n")
	b.WriteString("DTSTAMP:" + Timestamp(now) + "\n")
	b.WriteString("END:VEVENT\n")
	b.WriteString("END:VCALENDAR\n")
	return b.String(), nil
}

// Timestamp formats a time in the compact UTC form iCalendar uses.
func Timestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func orTBD(p *int) string {
	if p == nil {
		return "TBD"
	}
	return strconv.Itoa(*p)
}
