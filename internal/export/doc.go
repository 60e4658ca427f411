// Package export writes client analytics reports to S3 and keeps a history
// of campaign summaries in DynamoDB.
package export
