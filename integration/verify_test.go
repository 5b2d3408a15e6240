package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCallerIdentity struct {
	accountID string
	err       error
}

func (f *fakeCallerIdentity) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.accountID)}, nil
}

type fakeLogGroups struct {
	err      error
	gotLimit *int32
}

func (f *fakeLogGroups) DescribeLogGroups(_ context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	f.gotLimit = params.Limit
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatchlogs.DescribeLogGroupsOutput{}, nil
}

func TestVerifyAccessSuccess(t *testing.T) {
	stsClient := &fakeCallerIdentity{accountID: "123456789012"}
	logsClient := &fakeLogGroups{}

	result := VerifyAccess(context.Background(), stsClient, logsClient)

	assert.True(t, result.Valid)
	assert.Equal(t, "AWS credentials verified successfully with CloudWatch access", result.Message)
	assert.Equal(t, "123456789012", result.AccountID)
	require.NotNil(t, logsClient.gotLimit)
	assert.EqualValues(t, 1, *logsClient.gotLimit)
}

func TestVerifyAccessSTSErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "invalid token",
			err:         &smithy.GenericAPIError{Code: "InvalidClientTokenId", Message: "bad token"},
			wantMessage: "Authentication Error: Invalid AWS Access Key ID or Secret Access Key. Please check your credentials.",
		},
		{
			name:        "signature mismatch",
			err:         &smithy.GenericAPIError{Code: "SignatureDoesNotMatch", Message: "sig"},
			wantMessage: "Authentication Error: Invalid AWS Access Key ID or Secret Access Key. Please check your credentials.",
		},
		{
			name:        "access denied",
			err:         &smithy.GenericAPIError{Code: "AccessDenied", Message: "no sts for you"},
			wantMessage: "Authentication Error: Access denied for STS service - no sts for you",
		},
		{
			name:        "other API error",
			err:         &smithy.GenericAPIError{Code: "ExpiredToken", Message: "token expired"},
			wantMessage: "Authentication Error: ExpiredToken - token expired",
		},
		{
			name:        "transport error",
			err:         errors.New("dial tcp: i/o timeout"),
			wantMessage: "Authentication Error: Unable to verify credentials - dial tcp: i/o timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := VerifyAccess(context.Background(),
				&fakeCallerIdentity{err: tt.err}, &fakeLogGroups{})

			assert.False(t, result.Valid)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Empty(t, result.AccountID)
		})
	}
}

func TestVerifyAccessCloudWatchErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "access denied exception",
			err:         &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"},
			wantMessage: "CloudWatch Access Error: Missing permissions for CloudWatch. Required permissions: logs:DescribeLogGroups, cloudwatch:*, xray:*",
		},
		{
			name:        "access denied",
			err:         &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"},
			wantMessage: "CloudWatch Access Error: Missing permissions for CloudWatch. Required permissions: logs:DescribeLogGroups, cloudwatch:*, xray:*",
		},
		{
			name:        "other API error",
			err:         &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			wantMessage: "CloudWatch Access Error: ThrottlingException - slow down",
		},
		{
			name:        "transport error",
			err:         errors.New("connection reset"),
			wantMessage: "CloudWatch Access Error: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := VerifyAccess(context.Background(),
				&fakeCallerIdentity{accountID: "123456789012"},
				&fakeLogGroups{err: tt.err})

			assert.False(t, result.Valid)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, "123456789012", result.AccountID,
				"account from the STS step is still reported")
		})
	}
}
