package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

// gradesFor lists the grades offered for the given number of answer
// buttons. Hard is only meaningful for reviews.
func gradesFor(buttons int) []domain.Grade {
	switch buttons {
	case 4:
		return []domain.Grade{domain.Again, domain.Hard, domain.Good, domain.Easy}
	case 3:
		return []domain.Grade{domain.Again, domain.Good, domain.Easy}
	default:
		return []domain.Grade{domain.Again, domain.Good}
	}
}

// formatInterval renders seconds the way answer buttons show them.
func formatInterval(secs int64) string {
	switch {
	case secs == 0:
		return "end"
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	case secs < 30*86400:
		return fmt.Sprintf("%dd", secs/86400)
	case secs < 365*86400:
		return fmt.Sprintf("%.1fmo", float64(secs)/(30*86400))
	default:
		return fmt.Sprintf("%.1fy", float64(secs)/(365*86400))
	}
}

func cmdStudy(ctx context.Context, a *app, _ []string) error {
	in := bufio.NewScanner(a.in)
	studied := 0
	for ctx.Err() == nil {
		card, err := a.sched.GetCard(ctx)
		if err != nil {
			return err
		}
		if card == nil {
			fmt.Fprintf(a.out, "Congratulations, nothing else is due. %d cards studied.\n", studied)
			return nil
		}
		c, err := a.sched.Counts(ctx)
		if err != nil {
			return err
		}
		note, err := a.db.Note(ctx, card.NoteID)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "\n[%d new, %d learning, %d review]\nQ: %s\n", c.New, c.Learn, c.Review, note.Question)
		fmt.Fprint(a.out, "(enter to show the answer, q to quit) ")
		if !in.Scan() || strings.TrimSpace(in.Text()) == "q" {
			break
		}
		fmt.Fprintf(a.out, "A: %s\n", note.Answer)
		if note.Context != "" {
			fmt.Fprintf(a.out, "C: %s\n", note.Context)
		}

		buttons, err := a.sched.AnswerButtons(ctx, card)
		if err != nil {
			return err
		}
		grades := gradesFor(buttons)
		for i, g := range grades {
			secs, err := a.sched.NextInterval(ctx, card, g)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "  %d) %s %s\n", i+1, g, formatInterval(secs))
		}

		grade, ok := readGrade(a, in, grades)
		if !ok {
			break
		}
		if err := a.sched.Answer(ctx, card, grade); err != nil {
			return err
		}
		studied++
	}
	fmt.Fprintf(a.out, "\n%d cards studied.\n", studied)
	return ctx.Err()
}

// readGrade prompts until a listed button is chosen. It reports false when
// input ends or the user quits.
func readGrade(a *app, in *bufio.Scanner, grades []domain.Grade) (domain.Grade, bool) {
	for {
		fmt.Fprint(a.out, "> ")
		if !in.Scan() {
			return 0, false
		}
		text := strings.TrimSpace(in.Text())
		if text == "q" {
			return 0, false
		}
		n, err := strconv.Atoi(text)
		if err == nil && n >= 1 && n <= len(grades) {
			return grades[n-1], true
		}
		fmt.Fprintf(a.out, "choose 1 to %d\n", len(grades))
	}
}
