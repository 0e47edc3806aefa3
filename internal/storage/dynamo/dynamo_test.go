package dynamo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spigell/cv-screener/internal/recruiting"
)

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	pages   [][]map[string]types.AttributeValue
	failErr error

	gets    []*dynamodb.GetItemInput
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	deletes []*dynamodb.DeleteItemInput
	queries []*dynamodb.QueryInput

	updateOut map[string]types.AttributeValue
}

func itemID(k map[string]types.AttributeValue) string {
	pk := k["pk"].(*types.AttributeValueMemberS).Value
	sk := k["sk"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemID(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.items == nil {
		f.items = map[string]map[string]types.AttributeValue{}
	}
	f.items[itemID(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &dynamodb.UpdateItemOutput{Attributes: f.updateOut}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	delete(f.items, itemID(in.Key))
	return &dynamodb.DeleteItemOutput{}, f.failErr
}

// Query serves f.pages in order, chaining them through LastEvaluatedKey.
func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.failErr != nil {
		return nil, f.failErr
	}

	page := len(f.queries) - 1
	if page >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}

	out := &dynamodb.QueryOutput{Items: f.pages[page]}
	if page < len(f.pages)-1 {
		out.LastEvaluatedKey = key("page", string(rune('0'+page)))
	}
	return out, nil
}

func mustMarshal(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return av
}

func TestPostingsOwns(t *testing.T) {
	posting := recruiting.NewJobPosting("job-1", "alice", time.Unix(0, 0))
	api := &fakeDynamo{}
	postings := NewPostings("jobs", api)

	if err := postings.Create(context.Background(), posting); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := aws.ToString(api.puts[0].ConditionExpression); got != "attribute_not_exists(pk)" {
		t.Fatalf("unexpected create condition %q", got)
	}

	owned, err := postings.Owns(context.Background(), "job-1", "alice")
	if err != nil || !owned {
		t.Fatalf("expected alice to own job-1, got %v (err %v)", owned, err)
	}

	owned, err = postings.Owns(context.Background(), "job-1", "bob")
	if err != nil || owned {
		t.Fatalf("expected bob not to own job-1, got %v (err %v)", owned, err)
	}

	if got := aws.ToString(api.gets[0].ProjectionExpression); got != "pk" {
		t.Fatalf("ownership check should project pk only, got %q", got)
	}
}

func TestPostingsGetNotOwned(t *testing.T) {
	postings := NewPostings("jobs", &fakeDynamo{})

	_, err := postings.Get(context.Background(), "job-1", "alice")
	if !errors.Is(err, recruiting.ErrJobNotOwned) {
		t.Fatalf("expected ErrJobNotOwned, got %v", err)
	}
}

func TestPostingsOwnsPropagatesErrors(t *testing.T) {
	postings := NewPostings("jobs", &fakeDynamo{failErr: errors.New("throttled")})

	if _, err := postings.Owns(context.Background(), "job-1", "alice"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostingsListByUserUsesIndexAndPages(t *testing.T) {
	first := recruiting.NewJobPosting("job-1", "alice", time.Unix(0, 0))
	second := recruiting.NewJobPosting("job-2", "alice", time.Unix(0, 0))

	api := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		{mustMarshal(t, first)},
		{mustMarshal(t, second)},
	}}

	postings, err := NewPostings("jobs", api).ListByUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(postings) != 2 || postings[0].JobID != "job-1" || postings[1].JobID != "job-2" {
		t.Fatalf("unexpected postings %+v", postings)
	}
	if len(api.queries) != 2 {
		t.Fatalf("expected 2 query pages, got %d", len(api.queries))
	}
	if got := aws.ToString(api.queries[0].IndexName); got != UserIndex {
		t.Fatalf("expected index %q, got %q", UserIndex, got)
	}
	sk := api.queries[0].ExpressionAttributeValues[":sk"].(*types.AttributeValueMemberS).Value
	if sk != "USER#alice" {
		t.Fatalf("unexpected sk value %q", sk)
	}
}

func TestPostingsUpdate(t *testing.T) {
	description := "new text"
	status := recruiting.JobStatusInactive

	stored := recruiting.NewJobPosting("job-1", "alice", time.Unix(0, 0))
	stored.Description = description
	stored.Status = status

	api := &fakeDynamo{updateOut: mustMarshal(t, stored)}
	postings := NewPostings("jobs", api)

	got, err := postings.Update(context.Background(), "job-1", "alice", recruiting.PostingPatch{
		Description: &description,
		Status:      &status,
	}, time.Unix(100, 0))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != status || got.Description != description {
		t.Fatalf("unexpected posting %+v", got)
	}

	in := api.updates[0]
	expr := aws.ToString(in.UpdateExpression)
	for _, part := range []string{"updated_at = :updated_at", "description = :description", "#status = :status"} {
		if !strings.Contains(expr, part) {
			t.Fatalf("expression %q missing %q", expr, part)
		}
	}
	if in.ExpressionAttributeNames["#status"] != "status" {
		t.Fatalf("status must be aliased, got %v", in.ExpressionAttributeNames)
	}
	if in.ReturnValues != types.ReturnValueAllNew {
		t.Fatalf("expected ALL_NEW, got %s", in.ReturnValues)
	}
}

func TestPostingsUpdateDescriptionOnlyOmitsNames(t *testing.T) {
	description := "only text"
	api := &fakeDynamo{updateOut: mustMarshal(t, recruiting.NewJobPosting("job-1", "alice", time.Unix(0, 0)))}

	if _, err := NewPostings("jobs", api).Update(context.Background(), "job-1", "alice", recruiting.PostingPatch{Description: &description}, time.Unix(0, 0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if api.updates[0].ExpressionAttributeNames != nil {
		t.Fatalf("unexpected attribute names %v", api.updates[0].ExpressionAttributeNames)
	}
}

func TestPostingsUpdateErrors(t *testing.T) {
	postings := NewPostings("jobs", &fakeDynamo{})
	if _, err := postings.Update(context.Background(), "job-1", "alice", recruiting.PostingPatch{}, time.Now()); !errors.Is(err, recruiting.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty patch, got %v", err)
	}

	description := "x"
	failing := NewPostings("jobs", &fakeDynamo{failErr: &types.ConditionalCheckFailedException{}})
	if _, err := failing.Update(context.Background(), "job-1", "alice", recruiting.PostingPatch{Description: &description}, time.Now()); !errors.Is(err, recruiting.ErrJobNotOwned) {
		t.Fatalf("expected ErrJobNotOwned, got %v", err)
	}
}

func TestApplicationsLifecycle(t *testing.T) {
	api := &fakeDynamo{}
	apps := NewApplications("applications", api)
	ctx := context.Background()

	if err := apps.Upsert(ctx, &recruiting.Application{JobID: "job-1", CVID: "cv-1", UploadKey: "uploads/JD#job-1/alice#cv-1.pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := apps.Get(ctx, "job-1", "cv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UploadKey != "uploads/JD#job-1/alice#cv-1.pdf" {
		t.Fatalf("unexpected application %+v", got)
	}

	if err := apps.SetAnalysis(ctx, "job-1", "cv-1", "results/JD#job-1/alice#cv-1.json", 87.5); err != nil {
		t.Fatalf("set analysis: %v", err)
	}
	score := api.updates[0].ExpressionAttributeValues[":score"].(*types.AttributeValueMemberN).Value
	if score != "87.5" {
		t.Fatalf("unexpected score %q", score)
	}
	if got := aws.ToString(api.updates[0].ConditionExpression); got != "attribute_exists(pk)" {
		t.Fatalf("set analysis must not create applications, condition %q", got)
	}

	if err := apps.ClearAnalysis(ctx, "job-1", "cv-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if expr := aws.ToString(api.updates[1].UpdateExpression); !strings.HasPrefix(expr, "REMOVE cv_s3_key") {
		t.Fatalf("unexpected clear expression %q", expr)
	}
	if api.updates[1].ExpressionAttributeValues != nil {
		t.Fatal("REMOVE must not send attribute values")
	}

	if err := apps.Delete(ctx, "job-1", "cv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := apps.Get(ctx, "job-1", "cv-1"); !errors.Is(err, recruiting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestApplicationsSetRatingMissing(t *testing.T) {
	apps := NewApplications("applications", &fakeDynamo{failErr: &types.ConditionalCheckFailedException{}})

	if err := apps.SetRating(context.Background(), "job-1", "cv-1", 4); !errors.Is(err, recruiting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplicationsSetAnalysisMissing(t *testing.T) {
	apps := NewApplications("applications", &fakeDynamo{failErr: &types.ConditionalCheckFailedException{}})

	err := apps.SetAnalysis(context.Background(), "job-1", "cv-1", "results/JD#job-1/alice#cv-1.json", 50)
	if !errors.Is(err, recruiting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResultsScopedToRecruiter(t *testing.T) {
	api := &fakeDynamo{}
	results := NewResults("results", api)
	ctx := context.Background()

	if err := results.Put(ctx, &recruiting.AnalysisResult{JobID: "job-1", CVID: "cv-1", RecruiterID: "alice", Score: 70}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := results.Get(ctx, "job-1", "alice", "cv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Score != 70 {
		t.Fatalf("unexpected result %+v", got)
	}

	if _, err := results.Get(ctx, "job-1", "bob", "cv-1"); !errors.Is(err, recruiting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another recruiter, got %v", err)
	}

	if _, err := results.ListByJob(ctx, "job-1", "alice"); err != nil {
		t.Fatalf("list: %v", err)
	}
	prefix := api.queries[0].ExpressionAttributeValues[":recruiter"].(*types.AttributeValueMemberS).Value
	if prefix != "RECRUITER#alice#" {
		t.Fatalf("unexpected sk prefix %q", prefix)
	}
}

func TestResultsSetQuestions(t *testing.T) {
	api := &fakeDynamo{}
	if err := NewResults("results", api).SetQuestions(context.Background(), "job-1", "alice", "cv-1", []string{"a?", "b?"}); err != nil {
		t.Fatalf("set questions: %v", err)
	}

	list, ok := api.updates[0].ExpressionAttributeValues[":q"].(*types.AttributeValueMemberL)
	if !ok || len(list.Value) != 2 {
		t.Fatalf("expected a two element list, got %#v", api.updates[0].ExpressionAttributeValues[":q"])
	}
}
