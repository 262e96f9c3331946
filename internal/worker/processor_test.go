package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/internal/metrics"
	"github.com/cuongbtq/dataset-processor/internal/parser"
	"github.com/cuongbtq/dataset-processor/internal/storage"
)

type fakeStorage struct {
	dataset *domain.Dataset
	job     *domain.Job

	claimErrs    []error // consumed per ClaimJob call, nil entry claims
	claimCalls   int
	processErr   error
	progressSet  []int
	progressErr  error
	retryingMsgs []string
	successes    []storage.FinalizeSuccessParams
	successErr   error
	failures     []string
	failureErr   error
}

func (f *fakeStorage) GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error) {
	if f.dataset == nil {
		return nil, domain.ErrNotFound
	}
	return f.dataset, nil
}

func (f *fakeStorage) MarkDatasetProcessing(ctx context.Context, datasetID string) (bool, error) {
	if f.processErr != nil {
		return false, f.processErr
	}
	return true, nil
}

func (f *fakeStorage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	call := f.claimCalls
	f.claimCalls++
	if call < len(f.claimErrs) && f.claimErrs[call] != nil {
		return nil, f.claimErrs[call]
	}
	return f.job, nil
}

func (f *fakeStorage) SetJobProgress(ctx context.Context, jobID string, progress int) error {
	if f.progressErr != nil {
		return f.progressErr
	}
	f.progressSet = append(f.progressSet, progress)
	return nil
}

func (f *fakeStorage) MarkJobRetrying(ctx context.Context, jobID, errMsg string) error {
	f.retryingMsgs = append(f.retryingMsgs, errMsg)
	return nil
}

func (f *fakeStorage) FinalizeJobSuccess(ctx context.Context, p storage.FinalizeSuccessParams) error {
	if f.successErr != nil {
		return f.successErr
	}
	f.successes = append(f.successes, p)
	return nil
}

func (f *fakeStorage) FinalizeJobFailure(ctx context.Context, jobID, datasetID, errMsg string) error {
	if f.failureErr != nil {
		return f.failureErr
	}
	f.failures = append(f.failures, errMsg)
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
	getErrs []error // consumed per Get call, nil entry succeeds
	getCall int
	putErr  error
	puts    map[string][]byte
}

func (f *fakeBlobs) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	call := f.getCall
	f.getCall++
	if call < len(f.getErrs) && f.getErrs[call] != nil {
		return nil, f.getErrs[call]
	}
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, domain.ErrObjectStoreUnavailable
	}
	return body, nil
}

func (f *fakeBlobs) Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[bucket+"/"+key] = body
	return "etag-1", nil
}

func newTestWorker(store *fakeStorage, blobs *fakeBlobs) *Worker {
	return NewWorker(&Config{
		Logger:          slog.New(slog.DiscardHandler),
		Storage:         store,
		Blobs:           blobs,
		Metrics:         metrics.New(),
		WorkerID:        "worker-test",
		Concurrency:     1,
		JobTimeout:      5 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    time.Millisecond,
		RetryBackoffCap: 5 * time.Millisecond,
		ReportsBucket:   "reports",
		ParseLimits:     parser.Limits{MaxRows: 1000, MaxBytes: 1 << 20},
	})
}

func testFixtures() (*fakeStorage, *fakeBlobs, *domain.JobMessage) {
	dataset := &domain.Dataset{
		ID:           "11111111-1111-1111-1111-111111111111",
		Status:       domain.DatasetStatusUploaded,
		ContentType:  parser.ContentTypeCSV,
		UploadBucket: "uploads",
		UploadKey:    "datasets/11111111-1111-1111-1111-111111111111/source/data.csv",
	}
	job := &domain.Job{
		ID:        "22222222-2222-2222-2222-222222222222",
		DatasetID: dataset.ID,
		State:     domain.JobStateStarted,
		Progress:  5,
	}
	store := &fakeStorage{dataset: dataset, job: job}
	blobs := &fakeBlobs{objects: map[string][]byte{
		"uploads/" + dataset.UploadKey: []byte("id,total\n1,10\n2,20\n3,30\n"),
	}}
	msg := &domain.JobMessage{DatasetID: dataset.ID, JobID: job.ID, DeliveryTag: 7}
	return store, blobs, msg
}

func TestProcessJob_SuccessWritesReportAndMilestones(t *testing.T) {
	store, blobs, msg := testFixtures()
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, []int{25, 60, 85}, store.progressSet)
	require.Len(t, store.successes, 1)

	finalized := store.successes[0]
	assert.Equal(t, msg.JobID, finalized.JobID)
	assert.Equal(t, msg.DatasetID, finalized.DatasetID)
	assert.Equal(t, int64(3), finalized.RowCount)
	assert.Equal(t, "reports", finalized.ReportBucket)
	assert.Equal(t, domain.ReportKey(msg.DatasetID), finalized.ReportKey)
	require.NotNil(t, finalized.ReportEtag)
	assert.Equal(t, "etag-1", *finalized.ReportEtag)

	body, ok := blobs.puts["reports/"+domain.ReportKey(msg.DatasetID)]
	require.True(t, ok, "report blob must be stored")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, msg.DatasetID, doc["dataset_id"])
	assert.Equal(t, float64(3), doc["row_count"])

	assert.Empty(t, store.failures)
}

func TestProcessJob_DuplicateDeliveryDropsWithoutFailure(t *testing.T) {
	store, blobs, msg := testFixtures()
	store.claimErrs = []error{domain.ErrJobAlreadyClaimed}
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.Empty(t, store.successes)
	assert.Empty(t, store.failures)
}

func TestProcessJob_InvalidPayloadFailsImmediately(t *testing.T) {
	store, blobs, msg := testFixtures()
	blobs.objects["uploads/"+store.dataset.UploadKey] = []byte(`{"not": "an array"}`)
	store.dataset.ContentType = parser.ContentTypeJSON
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.NoError(t, err, "failure recorded in storage means the message is done")

	assert.Equal(t, 1, store.claimCalls, "invalid payload must not retry")
	assert.Empty(t, store.retryingMsgs)
	require.Len(t, store.failures, 1)
	assert.Contains(t, store.failures[0], "invalid dataset payload")
}

func TestProcessJob_TransientBlobFailureRetriesThenSucceeds(t *testing.T) {
	store, blobs, msg := testFixtures()
	blobs.getErrs = []error{domain.ErrObjectStoreUnavailable, domain.ErrObjectStoreUnavailable}
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 3, store.claimCalls, "one claim per attempt")
	assert.Len(t, store.retryingMsgs, 2)
	assert.Len(t, store.successes, 1)
	assert.Empty(t, store.failures)
}

func TestProcessJob_RetryExhaustionFinalizesFailure(t *testing.T) {
	store, blobs, msg := testFixtures()
	blobs.getErrs = []error{
		domain.ErrObjectStoreUnavailable,
		domain.ErrObjectStoreUnavailable,
		domain.ErrObjectStoreUnavailable,
		domain.ErrObjectStoreUnavailable,
	}
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 4, store.claimCalls, "initial attempt plus three retries")
	assert.Len(t, store.retryingMsgs, 3)
	assert.Empty(t, store.successes)
	require.Len(t, store.failures, 1)
	assert.Contains(t, store.failures[0], "storage service error")
}

func TestProcessJob_UnrecordableFailureReturnsError(t *testing.T) {
	store, blobs, msg := testFixtures()
	blobs.objects["uploads/"+store.dataset.UploadKey] = []byte{0xFF, 0xFE, 0x00}
	store.failureErr = domain.ErrStorageUnavailable
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err), "nack must requeue when the outcome was not recorded")
}

func TestProcessJob_FinalizeSuccessConflictDoesNotRetry(t *testing.T) {
	store, blobs, msg := testFixtures()
	store.successErr = errors.New("state transition conflict: dataset not processing")
	w := newTestWorker(store, blobs)

	err := w.processJob(context.Background(), msg)
	require.NoError(t, err, "conflict is terminal, failure is recorded")
	assert.Equal(t, 1, store.claimCalls)
	require.Len(t, store.failures, 1)
}
