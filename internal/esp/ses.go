package esp

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// SESConfig configures the SES transport. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region           string `yaml:"region" env:"AWS_REGION"`
	AccessKeyID      string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey  string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	ConfigurationSet string `yaml:"configuration_set" env:"SES_CONFIGURATION_SET"`
}

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends through the Amazon SES v2 API.
type SES struct {
	client    sesAPI
	configSet string
	log       *logger.Logger
}

// NewSES loads AWS configuration and creates the transport.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSES(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

func newSES(client sesAPI, configSet string) *SES {
	return &SES{client: client, configSet: configSet, log: logger.With("component", "esp.ses")}
}

// Send implements sending.Transport.
func (s *SES) Send(ctx context.Context, account *domain.SendingAccount, msg *sending.Message) (string, error) {
	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	body := &types.Body{Text: content}
	if isHTML(msg.Body) {
		body = &types.Body{Html: content}
	}

	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("account_id"), Value: aws.String(account.ID)},
			{Name: aws.String("job_id"), Value: aws.String(msg.IdempotencyKey)},
		},
	}
	if s.configSet != "" {
		in.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, in)
	if err != nil {
		return "", classifySES(err)
	}
	id := aws.ToString(out.MessageId)
	s.log.Debug("ses accepted message", "message_id", id, "to", msg.To)
	return id, nil
}

// classifySES maps SES API error codes onto sending error classes.
func classifySES(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		// Network or client-side failure.
		return sending.Transient("network", err)
	}
	code := apiErr.ErrorCode()
	switch code {
	case "TooManyRequestsException", "LimitExceededException", "ThrottlingException",
		"InternalFailure", "ServiceUnavailable":
		return sending.Transient(code, err)
	case "UnrecognizedClientException", "InvalidClientTokenId", "SignatureDoesNotMatch",
		"AccessDeniedException", "AccountSuspendedException", "SendingPausedException",
		"MailFromDomainNotVerifiedException":
		return sending.AuthRequired(code, err)
	case "MessageRejected", "BadRequestException", "NotFoundException":
		return sending.Permanent(code, err)
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return sending.Transient(code, err)
	}
	return sending.Permanent(code, err)
}
