package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spigell/cv-screener/internal/recruiting"
)

type Results struct {
	table string
	api   API
}

func NewResults(table string, api API) *Results {
	return &Results{table: table, api: api}
}

func (r *Results) Put(ctx context.Context, result *recruiting.AnalysisResult) error {
	result.PK = recruiting.ResultPK(result.JobID)
	result.SK = recruiting.ResultSK(result.RecruiterID, result.CVID)

	if err := putItem(ctx, r.api, r.table, result, nil); err != nil {
		return fmt.Errorf("put analysis result %s: %w", result.CVID, err)
	}
	return nil
}

// Get returns the stored result or recruiting.ErrNotFound.
func (r *Results) Get(ctx context.Context, jobID, userID, cvID string) (*recruiting.AnalysisResult, error) {
	var result recruiting.AnalysisResult
	found, err := getItem(ctx, r.api, r.table, key(recruiting.ResultPK(jobID), recruiting.ResultSK(userID, cvID)), &result)
	if err != nil {
		return nil, fmt.Errorf("get analysis result %s: %w", cvID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: analysis result %s", recruiting.ErrNotFound, cvID)
	}
	return &result, nil
}

func (r *Results) ListByJob(ctx context.Context, jobID, userID string) ([]recruiting.AnalysisResult, error) {
	results, err := queryAll[recruiting.AnalysisResult](ctx, r.api, &dynamodb.QueryInput{
		TableName:              &r.table,
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :recruiter)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        str(recruiting.ResultPK(jobID)),
			":recruiter": str(recruiting.ResultSKPrefix(userID)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list analysis results: %w", err)
	}
	return results, nil
}

func (r *Results) Delete(ctx context.Context, jobID, userID, cvID string) error {
	if err := deleteItem(ctx, r.api, r.table, key(recruiting.ResultPK(jobID), recruiting.ResultSK(userID, cvID))); err != nil {
		return fmt.Errorf("delete analysis result %s: %w", cvID, err)
	}
	return nil
}

// SetQuestions stores generated interview questions on an existing result.
func (r *Results) SetQuestions(ctx context.Context, jobID, userID, cvID string, questions []string) error {
	list, err := attributevalue.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	_, err = r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.table,
		Key:                       key(recruiting.ResultPK(jobID), recruiting.ResultSK(userID, cvID)),
		UpdateExpression:          aws.String("SET ss_questions = :q"),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":q": list},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w: analysis result %s", recruiting.ErrNotFound, cvID)
		}
		return fmt.Errorf("store interview questions for %s: %w", cvID, err)
	}
	return nil
}
