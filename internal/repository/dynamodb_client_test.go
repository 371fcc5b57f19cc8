package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type fakeDynamo struct {
	getOut     *dynamodb.GetItemOutput
	getErr     error
	putErr     error
	queryPages []*dynamodb.QueryOutput
	queryErr   error
	txErr      error

	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	queryInputs  []dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, *in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func mustMarshal(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func strValue(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q is not a string", key)
	return v.Value
}

func numValue(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %q is not a number", key)
	return v.Value
}

var started = time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC)

func testConversation(version int64) *domain.Conversation {
	conv := domain.NewConversation("c1", "5511999990000", started)
	conv.State = domain.StatePayment
	conv.AddressData = &domain.AddressData{
		FormattedAddress: "Rua Augusta, 1234 - Consolação, São Paulo",
		Components:       map[string]string{domain.ComponentStreet: "Rua Augusta", domain.ComponentNumber: "1234"},
	}
	conv.AppendMessage(domain.RoleUser, "quero uma calabresa", started)
	conv.Version = version
	return conv
}

func TestNew_ValidatesInputs(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestSaveConversation_FirstWriteRequiresAbsentRow(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	conv := testConversation(0)

	require.NoError(t, c.SaveConversation(context.Background(), conv))
	require.Equal(t, int64(1), conv.Version)

	in := db.lastPutInput
	require.Equal(t, "test-table", aws.ToString(in.TableName))
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(in.ConditionExpression))
	require.Equal(t, "PHONE#5511999990000", strValue(t, in.Item, "PK"))
	require.Equal(t, "CONV#2024-05-01T19:30:00Z#c1", strValue(t, in.Item, "SK"))
	require.Equal(t, "1", numValue(t, in.Item, "version"))
	require.Equal(t, "5", numValue(t, in.Item, "state"))
}

func TestSaveConversation_VersionCheck(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	conv := testConversation(3)

	require.NoError(t, c.SaveConversation(context.Background(), conv))
	require.Equal(t, int64(4), conv.Version)
	require.Equal(t, "version = :expected", aws.ToString(db.lastPutInput.ConditionExpression))
	require.Equal(t, "3", numValue(t, db.lastPutInput.ExpressionAttributeValues, ":expected"))
	require.Equal(t, "4", numValue(t, db.lastPutInput.Item, "version"))
}

func TestSaveConversation_Conflict(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: aws.String("stale")}}
	c := mustNewClient(t, db)
	conv := testConversation(2)

	err := c.SaveConversation(context.Background(), conv)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Equal(t, int64(2), conv.Version)
}

func TestSaveConversation_OtherErrorsWrapped(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("throttled")}
	c := mustNewClient(t, db)
	err := c.SaveConversation(context.Background(), testConversation(1))
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConflict)

	require.Error(t, c.SaveConversation(context.Background(), &domain.Conversation{}))
}

func TestLatestConversation_NewestFirst(t *testing.T) {
	stored := testConversation(7)
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{mustMarshal(t, toRecord(stored, stored.Version))},
	}}}
	c := mustNewClient(t, db)

	conv, err := c.LatestConversation(context.Background(), "5511999990000")
	require.NoError(t, err)
	require.Equal(t, "c1", conv.ID)
	require.Equal(t, domain.StatePayment, conv.State)
	require.Equal(t, int64(7), conv.Version)
	require.Equal(t, "Rua Augusta", conv.AddressData.Street())
	require.Len(t, conv.Messages, 1)
	require.True(t, conv.StartedAt.Equal(started))

	in := db.queryInputs[0]
	require.False(t, aws.ToBool(in.ScanIndexForward))
	require.Equal(t, int32(1), aws.ToInt32(in.Limit))
	require.Equal(t, "PHONE#5511999990000", strValue(t, in.ExpressionAttributeValues, ":pk"))
}

func TestLatestConversation_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.LatestConversation(context.Background(), "5511")
	require.ErrorIs(t, err, domain.ErrNotFound)

	c = mustNewClient(t, &fakeDynamo{queryErr: errors.New("boom")})
	_, err = c.LatestConversation(context.Background(), "5511")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestGetConversation_ByIDAcrossPages(t *testing.T) {
	older := domain.NewConversation("c0", "5511", started.Add(-24*time.Hour))
	older.Version = 1
	wanted := domain.NewConversation("c1", "5511", started)
	wanted.CommittedOrderRef = "o1"
	wanted.Version = 2
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{mustMarshal(t, toRecord(older, 1))},
			LastEvaluatedKey: key("PHONE#5511", "CONV#x"),
		},
		{Items: []map[string]types.AttributeValue{mustMarshal(t, toRecord(wanted, 2))}},
	}}
	c := mustNewClient(t, db)

	conv, err := c.GetConversation(context.Background(), "5511", "c1")
	require.NoError(t, err)
	require.Equal(t, "o1", conv.CommittedOrderRef)
	require.Len(t, db.queryInputs, 2)
	require.NotNil(t, db.queryInputs[1].ExclusiveStartKey)

	_, err = c.GetConversation(context.Background(), "5511", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitOrder_WritesOrderAndConversationAtomically(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	conv := testConversation(4)
	conv.CommittedOrderRef = "o1"
	conv.State = domain.StateCommitted
	o := domain.Order{
		ID:             "o1",
		Identity:       conv.Identity,
		ConversationID: conv.ID,
		Items:          []domain.OrderItem{{Name: "Calabresa", Quantity: 1, Price: 45.9}},
		TotalValue:     45.9,
		Address:        "Rua Augusta, 1234",
		PaymentMethod:  "pix",
		Status:         domain.OrderStatusConfirmed,
		CreatedAt:      started,
	}

	require.NoError(t, c.CommitOrder(context.Background(), o, conv))
	require.Equal(t, int64(5), conv.Version)

	items := db.lastTxInput.TransactItems
	require.Len(t, items, 2)
	orderPut := items[0].Put
	require.Equal(t, "ORDER#o1", strValue(t, orderPut.Item, "PK"))
	require.Equal(t, "ORDER", strValue(t, orderPut.Item, "SK"))
	require.Equal(t, "pix", strValue(t, orderPut.Item, "paymentMethod"))
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(orderPut.ConditionExpression))

	convPut := items[1].Put
	require.Equal(t, "attribute_not_exists(committedOrderRef) AND version = :expected", aws.ToString(convPut.ConditionExpression))
	require.Equal(t, "4", numValue(t, convPut.ExpressionAttributeValues, ":expected"))
	require.Equal(t, "o1", strValue(t, convPut.Item, "committedOrderRef"))
	require.Equal(t, "7", numValue(t, convPut.Item, "state"))
}

func TestCommitOrder_CancelledTransaction(t *testing.T) {
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		Message: aws.String("cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}}
	c := mustNewClient(t, db)
	conv := testConversation(4)

	err := c.CommitOrder(context.Background(), domain.Order{ID: "o2"}, conv)
	require.ErrorIs(t, err, domain.ErrAlreadyCommitted)
	require.Equal(t, int64(4), conv.Version)
}

func TestCommitOrder_RequiresIDs(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.Error(t, c.CommitOrder(context.Background(), domain.Order{}, testConversation(1)))
	require.Error(t, c.CommitOrder(context.Background(), domain.Order{ID: "o"}, nil))
}

func TestGetOrder(t *testing.T) {
	o := domain.Order{ID: "o1", TotalValue: 91.8, Items: []domain.OrderItem{{Name: "Calabresa", Quantity: 2, Price: 45.9}}, CreatedAt: started}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: mustMarshal(t, orderRecord{PK: "ORDER#o1", SK: "ORDER", Order: o})}}
	c := mustNewClient(t, db)

	got, err := c.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, 91.8, got.TotalValue)
	require.Equal(t, 2, got.Items[0].Quantity)
	require.Equal(t, "ORDER#o1", strValue(t, db.lastGetInput.Key, "PK"))

	db.getOut = &dynamodb.GetItemOutput{}
	_, err = c.GetOrder(context.Background(), "o1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListMenuItems_FiltersAndSorts(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			mustMarshal(t, domain.MenuItem{Name: "Margherita", Category: "Pizza Salgada", Available: true}),
			mustMarshal(t, domain.MenuItem{Identifier: "bebidas_coca", Name: "Coca", Category: "Bebidas", Available: true}),
			mustMarshal(t, domain.MenuItem{Identifier: "pizza-salgada_atum", Name: "Atum", Category: "Pizza Salgada"}),
		},
	}}}
	c := mustNewClient(t, db)

	items, err := c.ListMenuItems(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "bebidas_coca", items[0].Identifier)
	require.Equal(t, "pizza-salgada_margherita", items[1].Identifier)
	require.Equal(t, "MENU", strValue(t, db.queryInputs[0].ExpressionAttributeValues, ":pk"))
}

func TestListPaymentMethods(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			mustMarshal(t, domain.PaymentMethod{Name: "PIX", Active: true}),
			mustMarshal(t, domain.PaymentMethod{Name: "Cheque"}),
		},
	}}}
	c := mustNewClient(t, db)

	all, err := c.ListPaymentMethods(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	db.queryPages = []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{
		mustMarshal(t, domain.PaymentMethod{Name: "PIX", Active: true}),
		mustMarshal(t, domain.PaymentMethod{Name: "Cheque"}),
	}}}
	active, err := c.ListPaymentMethods(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, []domain.PaymentMethod{{Name: "PIX", Active: true}}, active)
}

func TestGetBotConfiguration(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: mustMarshal(t, domain.BotConfiguration{Name: "Nonna", Greeting: "Ciao!"})}}
	c := mustNewClient(t, db)

	cfg, err := c.GetBotConfiguration(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Nonna", cfg.Name)
	require.Equal(t, "CONFIG", strValue(t, db.lastGetInput.Key, "PK"))
	require.Equal(t, "BOT", strValue(t, db.lastGetInput.Key, "SK"))

	db.getOut = nil
	_, err = c.GetBotConfiguration(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)

	db.getErr = errors.New("boom")
	_, err = c.GetBotConfiguration(context.Background())
	require.Error(t, err)
}
