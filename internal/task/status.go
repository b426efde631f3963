package task

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusReported Status = "reported"
	StatusPending  Status = "pending"
	StatusAssigned Status = "assigned"
	StatusOngoing  Status = "ongoing"
	StatusResolved Status = "resolved"
)

// Phase объединяет reported/pending/assigned в одно состояние до начала работ
type Phase int

const (
	PhaseUnknown Phase = iota
	PhasePreWork
	PhaseOngoing
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhasePreWork:
		return "pre-work"
	case PhaseOngoing:
		return "ongoing"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEvidenceRequired  = errors.New("photo required for this transition")
)

// ParseStatus сравнивает без учёта регистра и возвращает каноническую форму
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if s.Phase() == PhaseUnknown {
		return "", fmt.Errorf("%w %q: must be reported, pending, assigned, ongoing or resolved", ErrInvalidStatus, value)
	}
	return s, nil
}

// Canonical нужен для значений, прочитанных из хранилища как есть
func (s Status) Canonical() Status {
	return Status(strings.ToLower(strings.TrimSpace(string(s))))
}

func (s Status) Phase() Phase {
	switch s.Canonical() {
	case StatusReported, StatusPending, StatusAssigned:
		return PhasePreWork
	case StatusOngoing:
		return PhaseOngoing
	case StatusResolved:
		return PhaseResolved
	default:
		return PhaseUnknown
	}
}

func (s Status) IsTerminal() bool {
	return s.Phase() == PhaseResolved
}

// Next возвращает единственную допустимую следующую фазу
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhasePreWork:
		return PhaseOngoing, true
	case PhaseOngoing:
		return PhaseResolved, true
	default:
		return PhaseUnknown, false
	}
}

// Transition описывает проверенный переход
type Transition struct {
	From Status
	To   Status
	// NoOp - повторное подтверждение текущей фазы
	NoOp bool
}

// RequiresEvidence верно для входа в ongoing и в resolved
func (t Transition) RequiresEvidence() bool {
	return !t.NoOp && (t.To.Phase() == PhaseOngoing || t.To.Phase() == PhaseResolved)
}

// CheckTransition проверяет запрос по таблице фаз. Запрос той же фазы
// допускается как no-op, остальное отклоняется с указанием обоих статусов.
func CheckTransition(current, requested Status) (Transition, error) {
	from := current.Canonical()
	to := requested.Canonical()

	fromPhase := from.Phase()
	toPhase := to.Phase()
	if toPhase == PhaseUnknown {
		return Transition{}, fmt.Errorf("%w %q", ErrInvalidStatus, requested)
	}

	if fromPhase == toPhase {
		return Transition{From: from, To: from, NoOp: true}, nil
	}
	next, ok := fromPhase.Next()
	if !ok || next != toPhase {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return Transition{From: from, To: to}, nil
}
