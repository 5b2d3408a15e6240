package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// CallerIdentityAPI is the slice of the STS client verification uses.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// LogGroupsAPI is the slice of the CloudWatch Logs client verification uses.
type LogGroupsAPI interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

// VerifyResult reports whether a credential set can reach STS and
// CloudWatch. Message is stable and user-facing.
type VerifyResult struct {
	Valid     bool   `json:"is_valid"`
	Message   string `json:"message"`
	AccountID string `json:"account_id,omitempty"`
}

// VerifyAccess confirms the given clients hold working credentials with
// CloudWatch access: first GetCallerIdentity, then a one-item
// DescribeLogGroups probe. Error codes map to fixed messages so the UI can
// distinguish bad keys from missing permissions.
func VerifyAccess(ctx context.Context, stsClient CallerIdentityAPI, logsClient LogGroupsAPI) VerifyResult {
	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch code := apiErr.ErrorCode(); code {
			case "InvalidClientTokenId", "SignatureDoesNotMatch":
				return VerifyResult{
					Message: "Authentication Error: Invalid AWS Access Key ID or Secret Access Key. Please check your credentials.",
				}
			case "AccessDenied":
				return VerifyResult{
					Message: fmt.Sprintf("Authentication Error: Access denied for STS service - %s", apiErr.ErrorMessage()),
				}
			default:
				return VerifyResult{
					Message: fmt.Sprintf("Authentication Error: %s - %s", code, apiErr.ErrorMessage()),
				}
			}
		}
		return VerifyResult{
			Message: fmt.Sprintf("Authentication Error: Unable to verify credentials - %s", err),
		}
	}
	accountID := aws.ToString(identity.Account)

	_, err = logsClient.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		Limit: aws.Int32(1),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "AccessDeniedException" || code == "AccessDenied" {
				return VerifyResult{
					Message:   "CloudWatch Access Error: Missing permissions for CloudWatch. Required permissions: logs:DescribeLogGroups, cloudwatch:*, xray:*",
					AccountID: accountID,
				}
			}
			return VerifyResult{
				Message:   fmt.Sprintf("CloudWatch Access Error: %s - %s", code, apiErr.ErrorMessage()),
				AccountID: accountID,
			}
		}
		return VerifyResult{
			Message:   fmt.Sprintf("CloudWatch Access Error: %s", err),
			AccountID: accountID,
		}
	}

	return VerifyResult{
		Valid:     true,
		Message:   "AWS credentials verified successfully with CloudWatch access",
		AccountID: accountID,
	}
}
