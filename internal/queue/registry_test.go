package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
)

type stubHandler struct {
	name string
}

func (h stubHandler) Name() string { return h.name }

func (h stubHandler) Execute(domain.Context, *queue.JobRun) domain.Result {
	return domain.Success()
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := queue.NewRegistry()
	require.NoError(t, r.Register(stubHandler{name: "pdf_generate"}))

	h, ok := r.Lookup("pdf_generate")
	require.True(t, ok)
	assert.Equal(t, "pdf_generate", h.Name())

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	t.Parallel()
	r := queue.NewRegistry()
	require.NoError(t, r.Register(stubHandler{name: "order_email"}))

	err := r.Register(stubHandler{name: "order_email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Panics(t, func() { r.MustRegister(stubHandler{name: "order_email"}) })
}

func TestRegistryRejectsUnnamedHandler(t *testing.T) {
	t.Parallel()
	r := queue.NewRegistry()
	err := r.Register(stubHandler{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	r := queue.NewRegistry()
	require.NoError(t, r.Register(stubHandler{name: "order_email"}))
	require.NoError(t, r.Register(stubHandler{name: "analytics_rollup"}))
	require.NoError(t, r.Register(stubHandler{name: "pdf_generate"}))

	assert.Equal(t, []string{"analytics_rollup", "order_email", "pdf_generate"}, r.Names())
}

func TestDecodePayloadStrict(t *testing.T) {
	t.Parallel()
	run := &queue.JobRun{
		QueueName: "pdf_generate",
		Payload:   []byte(`{"calendar_id":"cal-1","watermark":true}`),
	}
	p, err := queue.DecodePayload[domain.PDFJobPayload](run, true)
	require.NoError(t, err)
	assert.Equal(t, "cal-1", p.CalendarID)
	assert.True(t, p.Watermark)
}

func TestDecodePayloadStrictRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	run := &queue.JobRun{
		QueueName: "pdf_generate",
		Payload:   []byte(`{"calendar_id":"cal-1","bogus":1}`),
	}
	_, err := queue.DecodePayload[domain.PDFJobPayload](run, true)
	assert.Error(t, err)
}

func TestDecodePayloadLenientIgnoresUnknownFields(t *testing.T) {
	t.Parallel()
	run := &queue.JobRun{
		QueueName: "analytics_rollup",
		Payload:   []byte(`{"day":"2026-08-24","extra":"ignored"}`),
	}
	p, err := queue.DecodePayload[domain.RollupPayload](run, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-24", p.Day)
}

func TestDecodePayloadBadJSON(t *testing.T) {
	t.Parallel()
	run := &queue.JobRun{QueueName: "pdf_generate", Payload: []byte(`{`)}
	_, err := queue.DecodePayload[domain.PDFJobPayload](run, true)
	assert.Error(t, err)
}
