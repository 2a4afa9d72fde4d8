package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-qr-auth/internal/config"
)

// messageTemplate is the SMS body; %s is the passcode.
const messageTemplate = "%s is your verification code. It expires in 5 minutes. Do not share it with anyone."

// Sender delivers passcodes as transactional SMS via AWS SNS.
type Sender struct {
	client *sns.Client
}

func NewSender(ctx context.Context, cfg *config.Config) (*Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &Sender{client: sns.NewFromConfig(awsCfg, opts...)}, nil
}

// SendOTP publishes the code to the number, given as country code + digits.
func (s *Sender) SendOTP(ctx context.Context, to, code string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(e164(to)),
		Message:     aws.String(fmt.Sprintf(messageTemplate, code)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func e164(number string) string {
	if len(number) > 0 && number[0] == '+' {
		return number
	}
	return "+" + number
}
