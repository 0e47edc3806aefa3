package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spigell/cv-screener/internal/recruiting"
)

type Applications struct {
	table string
	api   API
}

func NewApplications(table string, api API) *Applications {
	return &Applications{table: table, api: api}
}

func (a *Applications) Upsert(ctx context.Context, app *recruiting.Application) error {
	app.PK = recruiting.JobPK(app.JobID)
	app.SK = recruiting.CVSK(app.CVID)

	if err := putItem(ctx, a.api, a.table, app, nil); err != nil {
		return fmt.Errorf("upsert application %s: %w", app.CVID, err)
	}
	return nil
}

func (a *Applications) Get(ctx context.Context, jobID, cvID string) (*recruiting.Application, error) {
	var app recruiting.Application
	found, err := getItem(ctx, a.api, a.table, key(recruiting.JobPK(jobID), recruiting.CVSK(cvID)), &app)
	if err != nil {
		return nil, fmt.Errorf("get application %s: %w", cvID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: application %s", recruiting.ErrNotFound, cvID)
	}
	return &app, nil
}

func (a *Applications) ListByJob(ctx context.Context, jobID string) ([]recruiting.Application, error) {
	apps, err := queryAll[recruiting.Application](ctx, a.api, &dynamodb.QueryInput{
		TableName:              &a.table,
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :cv)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": str(recruiting.JobPK(jobID)),
			":cv": str(recruiting.CVSK("")),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// SetAnalysis links the application to its stored analysis. It never creates
// an application: a deleted one yields ErrNotFound.
func (a *Applications) SetAnalysis(ctx context.Context, jobID, cvID, resultKey string, score float64) error {
	return a.update(ctx, jobID, cvID, "SET cv_s3_key = :key, score = :score", map[string]types.AttributeValue{
		":key":   str(resultKey),
		":score": &types.AttributeValueMemberN{Value: strconv.FormatFloat(score, 'f', -1, 64)},
	})
}

// SetRating stores the recruiter's manual rating of a candidate.
func (a *Applications) SetRating(ctx context.Context, jobID, cvID string, rating int) error {
	return a.update(ctx, jobID, cvID, "SET rating = :rating", map[string]types.AttributeValue{
		":rating": &types.AttributeValueMemberN{Value: strconv.Itoa(rating)},
	})
}

// ClearAnalysis unlinks a deleted analysis from its application.
func (a *Applications) ClearAnalysis(ctx context.Context, jobID, cvID string) error {
	return a.update(ctx, jobID, cvID, "REMOVE cv_s3_key, score", nil)
}

func (a *Applications) Delete(ctx context.Context, jobID, cvID string) error {
	if err := deleteItem(ctx, a.api, a.table, key(recruiting.JobPK(jobID), recruiting.CVSK(cvID))); err != nil {
		return fmt.Errorf("delete application %s: %w", cvID, err)
	}
	return nil
}

func (a *Applications) update(ctx context.Context, jobID, cvID, expr string, values map[string]types.AttributeValue) error {
	in := &dynamodb.UpdateItemInput{
		TableName:           &a.table,
		Key:                 key(recruiting.JobPK(jobID), recruiting.CVSK(cvID)),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	}
	if len(values) > 0 {
		in.ExpressionAttributeValues = values
	}

	if _, err := a.api.UpdateItem(ctx, in); err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w: application %s", recruiting.ErrNotFound, cvID)
		}
		return fmt.Errorf("update application %s: %w", cvID, err)
	}
	return nil
}
