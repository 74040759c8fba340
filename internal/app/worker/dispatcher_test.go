package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-facilitator/internal/batch"
	"inference-facilitator/internal/job"
	"inference-facilitator/internal/merkle"
	"inference-facilitator/internal/settlement"
	"inference-facilitator/pkg/log"
	"inference-facilitator/pkg/metrics"
	pkgerrors "inference-facilitator/pkg/errors"
	"inference-facilitator/pkg/signature"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// step 一次 Pop 的结果；advance 在返回前推进时钟
type step struct {
	job     *job.Job
	err     error
	advance time.Duration
}

// scriptedSource 依次返回 steps，耗尽后取消 ctx
type scriptedSource struct {
	clock  *fakeClock
	steps  []step
	cancel context.CancelFunc
}

func (s *scriptedSource) Pop(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	if len(s.steps) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	s.clock.Advance(st.advance)
	return st.job, st.err
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []settlement.Request
	signers  []common.Address
	fail     map[string]bool
}

func (e *fakeExecutor) Settle(ctx context.Context, cred *signature.Credential, req settlement.Request) (*settlement.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	e.signers = append(e.signers, cred.Address)
	if e.fail[req.Network] {
		return nil, fmt.Errorf("network %s down", req.Network)
	}
	return &settlement.Result{Success: true, Transaction: "0xtx", Network: req.Network}, nil
}

func (e *fakeExecutor) batches() []settlement.Request {
	var out []settlement.Request
	for _, r := range e.requests {
		if r.Kind == settlement.RequestBatch {
			out = append(out, r)
		}
	}
	return out
}

type staticSigners struct{ missing map[string]bool }

func (s staticSigners) Signer(ctx context.Context, network string) (*signature.Credential, error) {
	if s.missing[network] {
		return nil, fmt.Errorf("no key for %s: %w", network, pkgerrors.ErrNotFound)
	}
	return signature.NewCredential(network, testKey)
}

type recordingUploader struct {
	data [][]byte
	err  error
}

func (u *recordingUploader) Upload(ctx context.Context, data []byte) (string, error) {
	u.data = append(u.data, data)
	if u.err != nil {
		return "", u.err
	}
	return "blob-1", nil
}

type harness struct {
	d      *Dispatcher
	clock  *fakeClock
	exec   *fakeExecutor
	rec    *metrics.Recorder
	sleeps []time.Duration
	logs   *bytes.Buffer
}

func newHarness(t *testing.T, size int, steps ...step) (*harness, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	buf, err := batch.NewBuffer(batch.Config{Size: size, Timeout: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	h := &harness{
		clock: clock,
		exec:  &fakeExecutor{fail: map[string]bool{}},
		rec:   metrics.NewRecorder(),
		logs:  &bytes.Buffer{},
	}
	src := &scriptedSource{clock: clock, steps: steps, cancel: cancel}
	logger := log.NewWithWriter(h.logs, "json", slog.LevelInfo)
	h.d = NewDispatcher("w-test", src, h.exec, staticSigners{}, buf, DefaultBackoff(), h.rec, logger)
	h.d.sleep = func(ctx context.Context, d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h, ctx
}

func (h *harness) metricsText(t *testing.T) string {
	var b bytes.Buffer
	require.NoError(t, h.rec.WritePrometheus(&b))
	return b.String()
}

func hashN(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}

func batchJob(network string, i int) *job.Job {
	return job.NewPayloadJob(network, hashN(i), hashN(i+1000), fmt.Sprintf("m%d", i), job.SettlementTypeBatch, "")
}

func expectedRoot(t *testing.T, jobs []*job.Job) common.Hash {
	t.Helper()
	leaves := make([]common.Hash, len(jobs))
	for i, j := range jobs {
		in, err := job.ParseHash(j.Payload.InputHash)
		require.NoError(t, err)
		out, err := job.ParseHash(j.Payload.OutputHash)
		require.NoError(t, err)
		leaves[i] = merkle.Leaf(in, out)
	}
	return merkle.Root(leaves)
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, time.Second, b.PollTimeout)
	assert.Equal(t, time.Second, b.JobError)
	assert.Equal(t, 5*time.Second, b.Transport)
	assert.Equal(t, b, Backoff{}.withDefaults())
	assert.Equal(t, 3*time.Second, Backoff{Transport: 3 * time.Second}.withDefaults().Transport)
}

func TestDispatcher_SizeTrigger(t *testing.T) {
	var jobs []*job.Job
	var steps []step
	for i := 0; i < 20; i++ {
		j := batchJob("og-evm", i)
		jobs = append(jobs, j)
		steps = append(steps, step{job: j})
	}
	h, ctx := newHarness(t, 20, steps...)

	err := h.d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	batches := h.exec.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "og-evm", batches[0].Network)
	assert.Equal(t, 20, batches[0].Batch.Size)
	assert.Equal(t, expectedRoot(t, jobs), batches[0].Batch.Root)
	assert.Equal(t, 0, h.d.buffer.Len())

	out := h.metricsText(t)
	assert.Contains(t, out, `settlements_processed_total{kind="batch",network="og-evm",status="success"} 1`)
	assert.Contains(t, out, `batch_size{network="og-evm"} 20`)
	assert.Contains(t, out, `settlements_items_processed_total{kind="batch_item",network="og-evm"} 20`)
}

func TestDispatcher_NoFlushBelowThreshold(t *testing.T) {
	var steps []step
	for i := 0; i < 19; i++ {
		steps = append(steps, step{job: batchJob("og", i)})
	}
	h, ctx := newHarness(t, 20, steps...)
	_ = h.d.Run(ctx)

	assert.Empty(t, h.exec.requests)
	assert.Equal(t, 19, h.d.buffer.Len())
	assert.Contains(t, h.logs.String(), `"pending":19`)
}

func TestDispatcher_TimeTrigger(t *testing.T) {
	var jobs []*job.Job
	var steps []step
	for i := 0; i < 5; i++ {
		j := batchJob("og", i)
		jobs = append(jobs, j)
		steps = append(steps, step{job: j})
	}
	// 空轮询推进时钟：59s 时未到期，60s 时触发
	steps = append(steps, step{advance: 59 * time.Second}, step{advance: time.Second}, step{})
	h, ctx := newHarness(t, 20, steps...)
	_ = h.d.Run(ctx)

	batches := h.exec.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, 5, batches[0].Batch.Size)
	assert.Equal(t, expectedRoot(t, jobs), batches[0].Batch.Root)
	assert.Equal(t, h.clock.Now(), h.d.buffer.LastFlush())
}

func TestDispatcher_EmptyBufferNeverFlushes(t *testing.T) {
	h, ctx := newHarness(t, 20, step{advance: time.Hour}, step{advance: time.Hour})
	_ = h.d.Run(ctx)
	assert.Empty(t, h.exec.requests)
}

func TestDispatcher_MultiNetworkPartitionFailure(t *testing.T) {
	order := []string{"og", "base", "og", "base", "og"}
	var steps []step
	var ogJobs []*job.Job
	for i, n := range order {
		j := batchJob(n, i)
		if n == "og" {
			ogJobs = append(ogJobs, j)
		}
		steps = append(steps, step{job: j})
	}
	h, ctx := newHarness(t, 5, steps...)
	h.exec.fail["og"] = true
	_ = h.d.Run(ctx)

	batches := h.exec.batches()
	require.Len(t, batches, 2)
	assert.Equal(t, "og", batches[0].Network)
	assert.Equal(t, 3, batches[0].Batch.Size)
	assert.Equal(t, expectedRoot(t, ogJobs), batches[0].Batch.Root)
	assert.Equal(t, "base", batches[1].Network)
	assert.Equal(t, 2, batches[1].Batch.Size)

	assert.Equal(t, 0, h.d.buffer.Len())
	assert.Empty(t, h.sleeps)

	out := h.metricsText(t)
	assert.Contains(t, out, `settlements_processed_total{kind="batch",network="og",status="failure"} 1`)
	assert.Contains(t, out, `settlements_processed_total{kind="batch",network="base",status="success"} 1`)
	assert.NotContains(t, out, `settlements_items_processed_total{kind="batch_item",network="og"}`)
}

func TestDispatcher_MissingSignerDropsPartition(t *testing.T) {
	h, ctx := newHarness(t, 2, step{job: batchJob("og", 1)}, step{job: batchJob("base", 2)})
	h.d.signers = staticSigners{missing: map[string]bool{"og": true}}
	_ = h.d.Run(ctx)

	batches := h.exec.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "base", batches[0].Network)
	assert.Equal(t, 0, h.d.buffer.Len())
}

func TestDispatcher_HexNormalization(t *testing.T) {
	in := "1111111111111111111111111111111111111111111111111111111111111111"
	out := "2222222222222222222222222222222222222222222222222222222222222222"
	bare := job.NewPayloadJob("og", in, out, "", job.SettlementTypeBatch, "")
	prefixed := job.NewPayloadJob("og", "0x"+in, "0x"+out, "", job.SettlementTypeBatch, "")

	h1, ctx1 := newHarness(t, 1, step{job: bare})
	_ = h1.d.Run(ctx1)
	h2, ctx2 := newHarness(t, 1, step{job: prefixed})
	_ = h2.d.Run(ctx2)

	require.Len(t, h1.exec.batches(), 1)
	require.Len(t, h2.exec.batches(), 1)
	assert.Equal(t, h2.exec.batches()[0].Batch.Root, h1.exec.batches()[0].Batch.Root)
}

func TestDispatcher_ImmediateRouting(t *testing.T) {
	payment := job.NewPaymentJob(
		&job.PaymentPayload{X402Version: 1, Scheme: "exact", Network: "base", Payload: json.RawMessage(`{}`)},
		&job.PaymentRequirements{Scheme: "exact", Network: "base", MaxAmountRequired: "1500", Asset: json.RawMessage(`"0xusdc"`)},
	)
	payload := job.NewPayloadJob("og", hashN(1), hashN(2), "m", "settle", "llm")
	h, ctx := newHarness(t, 20, step{job: payment}, step{job: payload})
	_ = h.d.Run(ctx)

	require.Len(t, h.exec.requests, 2)
	assert.Equal(t, settlement.RequestPayment, h.exec.requests[0].Kind)
	assert.Equal(t, "base", h.exec.requests[0].Network)
	assert.Equal(t, settlement.RequestPayload, h.exec.requests[1].Kind)
	assert.Equal(t, "og", h.exec.requests[1].Network)
	assert.Equal(t, 0, h.d.buffer.Len())

	cred, _ := signature.NewCredential("og", testKey)
	assert.Equal(t, cred.Address, h.exec.signers[0])

	out := h.metricsText(t)
	assert.Contains(t, out, `settlements_processed_total{kind="single",network="base",status="success"} 1`)
	assert.Contains(t, out, `settlements_processed_total{kind="single_with_metadata",network="og",status="success"} 1`)
	assert.Contains(t, out, `tokens_paid_sum{asset="0xusdc",network="base"} 1500`)
}

func TestDispatcher_ImmediateFailureBacksOff(t *testing.T) {
	payload := job.NewPayloadJob("og", hashN(1), hashN(2), "", "", "")
	h, ctx := newHarness(t, 20, step{job: payload}, step{job: batchJob("base", 3)})
	h.exec.fail["og"] = true
	_ = h.d.Run(ctx)

	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
	assert.Equal(t, 1, h.d.buffer.Len())
	assert.Contains(t, h.metricsText(t), `settlements_processed_total{kind="single_with_metadata",network="og",status="failure"} 1`)
}

func TestDispatcher_QueueErrors(t *testing.T) {
	invalid := fmt.Errorf("%w: missing network", job.ErrInvalidJob)
	transport := pkgerrors.Mark(errors.New("connection refused"), pkgerrors.ErrUnavailable)
	h, ctx := newHarness(t, 20,
		step{err: invalid},
		step{err: transport},
		step{job: batchJob("og", 1)},
	)
	_ = h.d.Run(ctx)

	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeps)
	assert.Equal(t, 1, h.d.buffer.Len())
	assert.Contains(t, h.metricsText(t), `jobs_dropped_total{reason="invalid_job"} 1`)
}

func TestDispatcher_ArchivesBatchData(t *testing.T) {
	jobs := []*job.Job{batchJob("og", 1), batchJob("og", 2)}
	h, ctx := newHarness(t, 2, step{job: jobs[0]}, step{job: jobs[1]})
	up := &recordingUploader{}
	h.d.SetUploader(up)
	_ = h.d.Run(ctx)

	require.Len(t, up.data, 1)
	var dump merkle.Dump
	require.NoError(t, json.Unmarshal(up.data[0], &dump))
	assert.Equal(t, merkle.DumpFormat, dump.Format)
	assert.Equal(t, expectedRoot(t, jobs), dump.Root)
	assert.Len(t, dump.Values, 2)
	assert.Contains(t, h.metricsText(t), `archive_uploads_total{status="success"} 1`)
}

func TestDispatcher_ArchiveFailureStillSettles(t *testing.T) {
	h, ctx := newHarness(t, 1, step{job: batchJob("og", 1)})
	h.d.SetUploader(&recordingUploader{err: errors.New("publisher down")})
	_ = h.d.Run(ctx)

	require.Len(t, h.exec.batches(), 1)
	assert.Contains(t, h.metricsText(t), `archive_uploads_total{status="failure"} 1`)
}

func TestDispatcher_StartStop(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	buf, err := batch.NewBuffer(batch.Config{Size: 20, Timeout: time.Minute, Now: clock.Now})
	require.NoError(t, err)
	src := blockingSource{}
	d := NewDispatcher("w", src, &fakeExecutor{}, staticSigners{}, buf, Backoff{PollTimeout: 10 * time.Millisecond}, nil,
		log.NewWithWriter(io.Discard, "json", slog.LevelError))

	d.Start(context.Background())
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}

type blockingSource struct{}

func (blockingSource) Pop(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}
