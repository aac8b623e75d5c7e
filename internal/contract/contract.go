package contract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rxtech-lab/radx/pkg/errors"
)

// QuarterlyMonths is the quarterly futures cycle: March, June, September, December.
var QuarterlyMonths = []byte{'H', 'M', 'U', 'Z'}

// ID is a parsed quarterly contract id such as "CON.F.US.EP.H26".
type ID struct {
	// Prefix is everything before the month code, including the trailing dot.
	Prefix string
	Month  byte
	// Year is the two-digit year, 0 to 99.
	Year int
}

// ParseContractID splits a contract id into prefix, month code and two-digit year.
func ParseContractID(id string) (ID, error) {
	if len(id) < 4 {
		return ID{}, errors.Newf(errors.ErrCodeInvalidContract, "contract id %q is too short", id)
	}

	code := id[len(id)-3:]

	if strings.IndexByte(string(QuarterlyMonths), code[0]) < 0 {
		return ID{}, errors.Newf(errors.ErrCodeInvalidContract, "contract id %q has non quarterly month code %q", id, code[0])
	}

	year, err := strconv.Atoi(code[1:])
	if err != nil {
		return ID{}, errors.Wrapf(errors.ErrCodeInvalidContract, err, "contract id %q has invalid year", id)
	}

	return ID{
		Prefix: id[:len(id)-3],
		Month:  code[0],
		Year:   year,
	}, nil
}

// String renders the id back to its wire form with a zero-padded year.
func (c ID) String() string {
	return fmt.Sprintf("%s%c%02d", c.Prefix, c.Month, c.Year)
}

// Previous returns the contract one quarter earlier.
func (c ID) Previous() ID {
	idx := strings.IndexByte(string(QuarterlyMonths), c.Month)
	if idx == 0 {
		c.Month = QuarterlyMonths[len(QuarterlyMonths)-1]
		c.Year = (c.Year + 99) % 100

		return c
	}

	c.Month = QuarterlyMonths[idx-1]

	return c
}

// Candidates returns base followed by the lookback-1 contracts before it, most recent first.
func Candidates(base string, lookback int) ([]string, error) {
	if lookback <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "lookback must be positive, got %d", lookback)
	}

	id, err := ParseContractID(base)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, lookback)
	for range lookback {
		out = append(out, id.String())
		id = id.Previous()
	}

	return out, nil
}
