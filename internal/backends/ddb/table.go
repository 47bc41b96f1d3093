package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrFields = "fields"

	// rootPK holds records that live at the top level (paths without a slash).
	rootPK = "ROOT"

	// maxTransactItems is the DynamoDB limit for one TransactWriteItems call.
	maxTransactItems = 100
)

// splitPath maps a record path onto the (PK, SK) pair: the directory part keys the partition,
// the last segment sorts within it.
func splitPath(path string) (pk, sk string) {
	path = strings.Trim(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return rootPK, path
	}
	return path[:i], path[i+1:]
}

func dirPK(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rootPK
	}
	return prefix
}

func createTableIfNotExists(ctx context.Context, client API, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: awsString(attrPK), AttributeType: ddbTypes.ScalarAttributeTypeS},
			{AttributeName: awsString(attrSK), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: awsString(attrPK), KeyType: ddbTypes.KeyTypeHash},
			{AttributeName: awsString(attrSK), KeyType: ddbTypes.KeyTypeRange},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	var re *ddbTypes.ResourceInUseException
	if err != nil && !errors.As(err, &re) {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if err == nil {
		log.WithField("table", table).Info("created directory table")
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
