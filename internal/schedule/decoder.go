// Package schedule decodes the institution's compact timetable
// encoding. A token is a comma-joined list of segments, each holding a
// run of day letters with their period characters and an optional
// trailing classroom code, e.g. "M34-" or "T56ED203" or "W56R8-EC015".
package schedule

import (
	"strings"

	"crawler/internal/model"

	"github.com/rs/zerolog"
)

// Period codes beyond the numbered slots. The source squeezes early
// morning, noon and evening slots into single letters.
const (
	PeriodNoon = 10 // n
	PeriodA    = 11
	PeriodB    = 12
	PeriodC    = 13
	PeriodD    = 14
	PeriodY    = 15 // before first morning slot
	PeriodZ    = 16
)

var dayLetters = map[byte]model.Weekday{
	'M': model.Monday,
	'T': model.Tuesday,
	'W': model.Wednesday,
	'R': model.Thursday,
	'F': model.Friday,
	'S': model.Saturday,
	'U': model.Sunday,
}

var periodCodes = map[byte]int{
	'1': 1, '2': 2, '3': 3, '4': 4, '5': 5,
	'6': 6, '7': 7, '8': 8, '9': 9,
	'n': PeriodNoon,
	'a': PeriodA, 'b': PeriodB, 'c': PeriodC, 'd': PeriodD,
	'y': PeriodY, 'z': PeriodZ,
}

// Decoder decodes schedule tokens, logging characters it has to skip.
type Decoder struct {
	log zerolog.Logger
}

func NewDecoder(log zerolog.Logger) *Decoder {
	return &Decoder{log: log.With().Str("component", "schedule").Logger()}
}

// Decode splits token into segments and decodes each one. It never
// fails: unrecognized characters are logged and skipped and the rest
// of the token still decodes. Decoding is deterministic.
//
// One classroom code is emitted per day group, so every decoded day
// run can be paired with the room it meets in.
func (d *Decoder) Decode(token string) ([]model.ScheduleEntry, []string) {
	entries := []model.ScheduleEntry{}
	classrooms := []string{}
	for _, segment := range strings.Split(token, ",") {
		if segment == "" {
			continue
		}
		d.decodeSegment(segment, &entries, &classrooms)
	}
	return entries, classrooms
}

// Decode decodes token with skipped characters silently dropped.
func Decode(token string) ([]model.ScheduleEntry, []string) {
	return NewDecoder(zerolog.Nop()).Decode(token)
}

func (d *Decoder) decodeSegment(segment string, entries *[]model.ScheduleEntry, classrooms *[]string) {
	slots, classroom := splitClassroom(segment)

	var current model.Weekday
	var periods []int
	flush := func() {
		if current == 0 {
			return
		}
		if len(periods) == 0 {
			// A day letter with no period characters still counts as a
			// scheduled day.
			*entries = append(*entries, model.ScheduleEntry{Day: current})
		}
		for _, p := range periods {
			*entries = append(*entries, model.ScheduleEntry{Day: current, Period: p})
		}
		*classrooms = append(*classrooms, classroom)
		periods = periods[:0]
	}

	for i := 0; i < len(slots); i++ {
		ch := slots[i]
		if day, ok := dayLetters[ch]; ok {
			flush()
			current = day
			continue
		}
		if p, ok := periodCodes[ch]; ok {
			if current == 0 {
				d.log.Warn().Str("token", segment).Msgf("period %q before any day letter, skipping", ch)
				continue
			}
			periods = append(periods, p)
			continue
		}
		d.log.Warn().Str("token", segment).Msgf("unrecognized schedule character %q, skipping", ch)
	}
	flush()
}

// splitClassroom separates the day/period run from the trailing
// classroom code. Segments normally carry a dash before the room (the
// room itself may be empty); some variants omit the dash, in which
// case the room starts at the first character that is neither a day
// letter nor a period code.
func splitClassroom(segment string) (slots, classroom string) {
	if i := strings.LastIndexByte(segment, '-'); i >= 0 {
		return segment[:i], segment[i+1:]
	}
	for i := 0; i < len(segment); i++ {
		ch := segment[i]
		if _, ok := dayLetters[ch]; ok {
			continue
		}
		if _, ok := periodCodes[ch]; ok {
			continue
		}
		return segment[:i], segment[i:]
	}
	return segment, ""
}
