// Package draft turns a parsed job intent into a confirmable job draft and
// checks it against the existing schedule.
package draft

import (
	"strconv"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/intake"
)

// CustomerPerson is the only customer type drafts are created with.
const CustomerPerson = "Person"

// Draft is the UI-ready form of an intent. Nothing here is persisted.
type Draft struct {
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	ClientName      string          `json:"clientName"`
	Address         string          `json:"address"`
	WorkDescription string          `json:"workDescription"`
	WorkCategory    intake.Category `json:"workCategory"`
	Price           string          `json:"price"`
	Schedule        string          `json:"schedule"`
	ScheduleISO     string          `json:"scheduleISO"`
	RawSchedule     string          `json:"rawSchedule"`
	ScheduledAt     *time.Time      `json:"-"`
	ScheduleHasTime bool            `json:"-"`
	Phone           string          `json:"phone"`
	Email           string          `json:"email"`
	CustomerType    string          `json:"customerType"`
	Warnings        []string        `json:"warnings"`
}

// PriceValue returns the numeric price, 0 when unknown.
func (d Draft) PriceValue() float64 {
	v, err := strconv.ParseFloat(d.Price, 64)
	if err != nil {
		return 0
	}
	return v
}

// OneLiner renders the draft back into a message the parser understands.
func (d Draft) OneLiner() string {
	var b strings.Builder
	b.WriteString(d.ClientName)
	if d.Address != "" {
		b.WriteString(" from ")
		b.WriteString(d.Address)
	}
	b.WriteString(" needs ")
	b.WriteString(d.WorkDescription)
	for _, part := range []string{d.RawSchedule, pricePart(d.Price), d.Phone, d.Email} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	return b.String()
}

func pricePart(price string) string {
	if price == "" {
		return ""
	}
	return "$" + price
}

// Builder builds drafts. now supplies the reference time and location for
// relative schedules.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a Builder. A nil now uses time.Now.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build projects an intent into a draft with no warnings.
func (b *Builder) Build(in intake.Intent) Draft {
	name := intake.TitleCase(strings.TrimSpace(in.ClientName))
	if name == "" {
		name = "Unknown"
	}
	parts := strings.Fields(name)

	title := intake.NormalizeJobTitle(in.WorkDescription)

	d := Draft{
		FirstName:       parts[0],
		LastName:        strings.Join(parts[1:], " "),
		ClientName:      strings.Join(parts, " "),
		Address:         intake.EnrichAddress(in.Address),
		WorkDescription: title,
		WorkCategory:    intake.CategoriseWork(title),
		RawSchedule:     strings.TrimSpace(in.Schedule),
		Phone:           strings.TrimSpace(in.Phone),
		Email:           strings.TrimSpace(in.Email),
		CustomerType:    CustomerPerson,
		Warnings:        []string{},
	}
	if in.Price > 0 {
		d.Price = strconv.FormatFloat(in.Price, 'f', -1, 64)
	}
	if d.RawSchedule != "" {
		if s, ok := intake.ResolveSchedule(d.RawSchedule, b.now()); ok {
			at := s.At
			d.Schedule = s.Display
			d.ScheduleISO = s.ISO
			d.ScheduledAt = &at
			d.ScheduleHasTime = s.HasTime
		}
	}
	return d
}
