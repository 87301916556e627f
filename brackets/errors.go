package brackets

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-brackets/models"
)

var (
	ErrInsufficientTeams = errors.New("not enough teams for the requested format")
	ErrUnsupportedFormat = errors.New("unsupported bracket format")
)

type InsufficientTeamsError struct {
	Format   models.FormatKind
	Required int
	Got      int
}

func (e *InsufficientTeamsError) Error() string {
	return fmt.Sprintf("%s requires at least %d teams, found %d", e.Format, e.Required, e.Got)
}

func (e *InsufficientTeamsError) Is(target error) bool {
	return target == ErrInsufficientTeams
}

type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported bracket format %q", e.Format)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}
