package renewal

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Archiver stores a finished export in the object store and returns its
// location.
type Archiver interface {
	Store(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// ExportResult describes a stored renewal export.
type ExportResult struct {
	JobID    string `json:"job_id"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// ExportService renders renewal batches as CSV and archives them.  The CSV
// carries the fully computed invoice line per renewal, ready for the client
// call or the paying agent.
type ExportService struct {
	tasks   docket.TaskRepository
	matters matter.Repository
	fees    *FeeService
	archive Archiver
	logger  logging.Logger
	clock   func() time.Time
}

// NewExportService wires the export pipeline.
func NewExportService(
	tasks docket.TaskRepository,
	matters matter.Repository,
	fees *FeeService,
	archive Archiver,
	logger logging.Logger,
) *ExportService {
	return &ExportService{
		tasks:   tasks,
		matters: matters,
		fees:    fees,
		archive: archive,
		logger:  logger.Named("renewal-export"),
		clock:   time.Now,
	}
}

// WithClock overrides the service's time source.  Test hook.
func (s *ExportService) WithClock(clock func() time.Time) *ExportService {
	s.clock = clock
	return s
}

var exportHeader = []string{
	"task_id", "caseref", "country", "annuity_year", "due_date",
	"cost", "fee", "vat", "total_excl_vat", "total", "currency",
	"grace_period", "step", "invoice_step",
}

// Export renders the renewal tasks in ids as CSV, stores the file and
// returns its location.  Rows follow the input order; renewals whose fee
// cannot be computed are exported with empty amount columns rather than
// dropped, so the recipient sees the full batch.
func (s *ExportService) Export(ctx context.Context, ids []int64, opts QuoteOptions) (*ExportResult, error) {
	quotes, err := s.fees.QuoteTasks(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Quote, len(quotes))
	for _, q := range quotes {
		byID[q.TaskID] = q
	}

	tasks, err := s.tasks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "load export batch")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenewalExportFailed, "write header")
	}

	rows := 0
	for _, t := range tasks {
		if !t.IsRenewal() {
			continue
		}
		m, err := s.matters.GetByID(ctx, t.MatterID)
		if err != nil {
			s.logger.Warn("matter lookup failed during export, row skipped",
				logging.Int64("task_id", t.ID), logging.Err(err))
			continue
		}
		if err := w.Write(s.row(t, m, byID[t.ID])); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRenewalExportFailed, "write row")
		}
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenewalExportFailed, "flush csv")
	}

	jobID := uuid.NewString()
	name := fmt.Sprintf("renewals/%s-%s.csv", s.clock().Format("20060102-150405"), jobID)
	location, err := s.archive.Store(ctx, name, "text/csv", buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenewalExportFailed, "store export")
	}

	s.logger.Info("renewal export stored",
		logging.String("job_id", jobID),
		logging.String("location", location),
		logging.Int("rows", rows))
	return &ExportResult{JobID: jobID, Location: location, Rows: rows}, nil
}

func (s *ExportService) row(t *docket.Task, m *matter.Matter, q Quote) []string {
	row := []string{
		strconv.FormatInt(t.ID, 10),
		m.Caseref,
		m.Country,
		strconv.Itoa(t.AnnuityYear),
		t.DueDate.Format("2006-01-02"),
	}
	if q.Breakdown != nil {
		bd := q.Breakdown
		row = append(row,
			formatAmount(bd.Cost),
			formatAmount(bd.Fee),
			formatAmount(bd.VAT),
			formatAmount(bd.TotalExclVAT),
			formatAmount(bd.Total),
			bd.Currency,
		)
	} else {
		row = append(row, "", "", "", "", "", t.Currency)
	}
	row = append(row,
		strconv.FormatBool(t.GracePeriodApplied),
		strconv.Itoa(t.Step),
		strconv.Itoa(t.InvoiceStep),
	)
	return row
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
