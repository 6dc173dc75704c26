package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const jobTTL = 24 * time.Hour

// Status is the lifecycle of a tracked job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("jobs: job not found")

// Record is the persisted state of one job.
type Record struct {
	JobID        string `dynamodbav:"jobId" json:"jobId"`
	Status       Status `dynamodbav:"status" json:"status"`
	Kind         Kind   `dynamodbav:"kind" json:"kind"`
	SourceID     string `dynamodbav:"sourceId,omitempty" json:"sourceId,omitempty"`
	Outcome      string `dynamodbav:"outcome,omitempty" json:"outcome,omitempty"`
	ErrorMessage string `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Recorder writes new jobs and reads them back.
type Recorder interface {
	PutPending(ctx context.Context, job *Record) error
	GetJob(ctx context.Context, jobID string) (*Record, error)
}

// Updater settles jobs.
type Updater interface {
	MarkCompleted(ctx context.Context, jobID, outcome string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobStore keeps job records in DynamoDB with a TTL attribute.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

var (
	_ Recorder = (*JobStore)(nil)
	_ Updater  = (*JobStore)(nil)
)

func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("jobs: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobs: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PutPending inserts a new pending record; existing ids are not overwritten.
func (s *JobStore) PutPending(ctx context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	stampPending(job, s.now())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal job: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	}); err != nil {
		return fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	return nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID, outcome string) error {
	return s.settle(ctx, jobID, StatusCompleted, outcome, "")
}

func (s *JobStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return s.settle(ctx, jobID, StatusFailed, "", errMsg)
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, errors.New("jobs: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job Record
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("jobs: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) settle(ctx context.Context, jobID string, status Status, outcome, errMsg string) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		UpdateExpression: aws.String("SET #status = :status, #outcome = :outcome, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#outcome": "outcome",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":outcome": &types.AttributeValueMemberS{Value: outcome},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, err)
	}
	return nil
}

func stampPending(job *Record, now time.Time) {
	job.Status = StatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}

// MemoryJobStore tracks jobs in process, for local runs and tests.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Record
}

var (
	_ Recorder = (*MemoryJobStore)(nil)
	_ Updater  = (*MemoryJobStore)(nil)
)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: map[string]Record{}}
}

func (m *MemoryJobStore) PutPending(_ context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.JobID]; ok {
		return fmt.Errorf("jobs: job %s already exists", job.JobID)
	}
	stampPending(job, time.Now().UTC())
	m.jobs[job.JobID] = *job
	return nil
}

func (m *MemoryJobStore) GetJob(_ context.Context, jobID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryJobStore) MarkCompleted(_ context.Context, jobID, outcome string) error {
	return m.settle(jobID, StatusCompleted, outcome, "")
}

func (m *MemoryJobStore) MarkFailed(_ context.Context, jobID, errMsg string) error {
	return m.settle(jobID, StatusFailed, "", errMsg)
}

func (m *MemoryJobStore) settle(jobID string, status Status, outcome, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Outcome = outcome
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	m.jobs[jobID] = job
	return nil
}
