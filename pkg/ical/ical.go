// Package ical renders on-call shifts as an RFC 5545 calendar feed.
package ical

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-ical"
)

const ProdID = "-//Oncall//Oncall calendar feed//EN"

// Shift is one materialized on-call event to render. Contacts is only
// populated for feeds the caller has decided may carry contact details.
type Shift struct {
	ID       int64
	Team     string
	Role     string
	User     string
	FullName string
	Start    int64
	End      int64
	Contacts map[string]string
}

// Render builds the VCALENDAR document for a set of shifts. name labels
// the calendar (team or user the feed was requested for). Events are
// marked transparent so subscribing a feed does not block free-busy.
func Render(name string, shifts []*Shift) ([]byte, error) {
	cal := &ical.Calendar{
		Component: &ical.Component{
			Name:  ical.CompCalendar,
			Props: ical.Props{},
		},
	}
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropProductID, ProdID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText("X-WR-CALNAME", name+" Oncall Calendar")

	now := time.Now().UTC()
	for _, shift := range shifts {
		cal.Children = append(cal.Children, renderShift(shift, now))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderShift(shift *Shift, stamp time.Time) *ical.Component {
	event := &ical.Component{
		Name:  ical.CompEvent,
		Props: ical.Props{},
	}
	event.Props.SetText(ical.PropUID, fmt.Sprintf("event-%d@oncall", shift.ID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	event.Props.SetDateTime(ical.PropDateTimeStart, time.Unix(shift.Start, 0).UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, time.Unix(shift.End, 0).UTC())
	event.Props.SetText(ical.PropSummary,
		fmt.Sprintf("%s %s shift: %s", shift.Team, shift.Role, shift.FullName))
	event.Props.SetText(ical.PropDescription, description(shift))
	event.Props.SetText(ical.PropTransparency, "TRANSPARENT")

	// the attendee is always present; the address is blank on feeds that
	// must not carry contact details
	attendee := ical.NewProp(ical.PropAttendee)
	attendee.Params.Set(ical.ParamCommonName, shift.FullName)
	attendee.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
	attendee.SetText("MAILTO:" + shift.Contacts["email"])
	event.Props.Add(attendee)
	return event
}

// description lists the holder and, when present, one "mode: destination"
// line per contact in stable order.
func description(shift *Shift) string {
	text := shift.FullName
	modes := make([]string, 0, len(shift.Contacts))
	for mode := range shift.Contacts {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		text += fmt.Sprintf("\n%s: %s", mode, shift.Contacts[mode])
	}
	return text
}
