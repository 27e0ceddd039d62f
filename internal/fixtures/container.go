package fixtures

import (
	"context"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
)

// DefaultContainerType is the container type the cargo scenario registers
const DefaultContainerType = 55

// containerNumber is four owner letters followed by seven digits
var containerNumber = regexp.MustCompile(`^[A-Z]{4}[0-9]{7}$`)

// ValidContainerNumber reports whether s is a well-formed container number
func ValidContainerNumber(s string) bool {
	return containerNumber.MatchString(s)
}

const pageQuery = `
	SELECT num_container
	FROM container
	WHERE tab_tipo_container_id = ?
	  AND num_container IS NOT NULL
	ORDER BY num_container
	OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`

const usedQuery = `SELECT ctr_descricao FROM t_container WHERE ctr_descricao IN (?)`

// ContainerFinder finds container numbers that exist in the cargo database
// but are not yet registered in the transport database.
type ContainerFinder struct {
	source   *DB
	registry *DB
	typeID   int
	pageSize int
	logger   *zap.Logger
}

// NewContainerFinder creates a finder. source holds the container table,
// registry holds t_container.
func NewContainerFinder(source, registry *DB, pageSize int, logger *zap.Logger) *ContainerFinder {
	if pageSize <= 0 {
		pageSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContainerFinder{
		source:   source,
		registry: registry,
		typeID:   DefaultContainerType,
		pageSize: pageSize,
		logger:   logger,
	}
}

// WithType changes the container type searched for
func (f *ContainerFinder) WithType(typeID int) *ContainerFinder {
	f.typeID = typeID
	return f
}

// FirstFree returns the first valid container number, in ascending order,
// that the registry does not know yet. ok is false when none exists.
func (f *ContainerFinder) FirstFree(ctx context.Context) (number string, ok bool, err error) {
	query := f.source.Rebind(pageQuery)

	for offset := 0; ; offset += f.pageSize {
		var page []string
		if err := f.source.SelectContext(ctx, &page, query, f.typeID, offset, f.pageSize); err != nil {
			return "", false, domain.ErrFixtureLookup("reading container page", err)
		}
		if len(page) == 0 {
			f.logger.Info("No free container found", zap.Int("scanned", offset))
			return "", false, nil
		}

		candidates := validNumbers(page)
		if len(candidates) == 0 {
			continue
		}

		used, err := f.registered(ctx, candidates)
		if err != nil {
			return "", false, err
		}
		for _, c := range candidates {
			if !used[c] {
				f.logger.Info("Free container found", zap.String("container", c), zap.Int("offset", offset))
				return c, true, nil
			}
		}
	}
}

func validNumbers(page []string) []string {
	out := make([]string, 0, len(page))
	for _, n := range page {
		if ValidContainerNumber(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f *ContainerFinder) registered(ctx context.Context, numbers []string) (map[string]bool, error) {
	q, args, err := sqlx.In(usedQuery, numbers)
	if err != nil {
		return nil, domain.ErrFixtureLookup("building registry query", err)
	}

	var rows []string
	if err := f.registry.SelectContext(ctx, &rows, f.registry.Rebind(q), args...); err != nil {
		return nil, domain.ErrFixtureLookup("reading registry", err)
	}

	used := make(map[string]bool, len(rows))
	for _, r := range rows {
		used[strings.TrimSpace(r)] = true
	}
	return used, nil
}
