package dynamo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spigell/cv-screener/internal/recruiting"
)

// UserIndex is the GSI keyed on sk used to list a recruiter's postings.
const UserIndex = "sk-index"

type Postings struct {
	table string
	api   API
}

func NewPostings(table string, api API) *Postings {
	return &Postings{table: table, api: api}
}

func (p *Postings) Create(ctx context.Context, posting *recruiting.JobPosting) error {
	if err := putItem(ctx, p.api, p.table, posting, aws.String("attribute_not_exists(pk)")); err != nil {
		return fmt.Errorf("create job posting %s: %w", posting.JobID, err)
	}
	return nil
}

// Get returns the posting if it exists and is owned by userID.
func (p *Postings) Get(ctx context.Context, jobID, userID string) (*recruiting.JobPosting, error) {
	var posting recruiting.JobPosting
	found, err := getItem(ctx, p.api, p.table, key(recruiting.JobPK(jobID), recruiting.UserSK(userID)), &posting)
	if err != nil {
		return nil, fmt.Errorf("get job posting %s: %w", jobID, err)
	}
	if !found {
		return nil, recruiting.ErrJobNotOwned
	}
	return &posting, nil
}

// Owns is the ownership check every recruiter-facing operation runs first.
// The sort key embeds the owner, so a hit proves both existence and ownership.
func (p *Postings) Owns(ctx context.Context, jobID, userID string) (bool, error) {
	resp, err := p.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            &p.table,
		Key:                  key(recruiting.JobPK(jobID), recruiting.UserSK(userID)),
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, fmt.Errorf("ownership check for %s: %w", jobID, err)
	}
	return len(resp.Item) > 0, nil
}

func (p *Postings) ListByUser(ctx context.Context, userID string) ([]recruiting.JobPosting, error) {
	postings, err := queryAll[recruiting.JobPosting](ctx, p.api, &dynamodb.QueryInput{
		TableName:              &p.table,
		IndexName:              aws.String(UserIndex),
		KeyConditionExpression: aws.String("sk = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": str(recruiting.UserSK(userID)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list job postings: %w", err)
	}
	return postings, nil
}

// Update applies patch and returns the stored posting.
func (p *Postings) Update(ctx context.Context, jobID, userID string, patch recruiting.PostingPatch, now time.Time) (*recruiting.JobPosting, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: at least one of description or status must be provided", recruiting.ErrInvalidRequest)
	}

	updatedAt, err := attributevalue.Marshal(now.UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}

	parts := []string{"updated_at = :updated_at"}
	values := map[string]types.AttributeValue{":updated_at": updatedAt}
	names := map[string]string{}

	if patch.Description != nil {
		parts = append(parts, "description = :description")
		values[":description"] = str(*patch.Description)
	}
	if patch.Status != nil {
		parts = append(parts, "#status = :status")
		values[":status"] = str(patch.Status.String())
		names["#status"] = "status"
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                 &p.table,
		Key:                       key(recruiting.JobPK(jobID), recruiting.UserSK(userID)),
		UpdateExpression:          aws.String("SET " + strings.Join(parts, ", ")),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	resp, err := p.api.UpdateItem(ctx, in)
	if err != nil {
		if isConditionFailed(err) {
			return nil, recruiting.ErrJobNotOwned
		}
		return nil, fmt.Errorf("update job posting %s: %w", jobID, err)
	}

	var posting recruiting.JobPosting
	if err := attributevalue.UnmarshalMap(resp.Attributes, &posting); err != nil {
		return nil, fmt.Errorf("unmarshal updated posting: %w", err)
	}
	return &posting, nil
}
