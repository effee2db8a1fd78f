package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"
)

type BedrockOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Model           string
	// Endpoint 为空时由 SDK 按 region 解析
	Endpoint   string
	HTTPClient *http.Client
}

// BedrockClient 通过 InvokeModel 调用 Bedrock；重试由 Retrier 负责，SDK 自身不重试
type BedrockClient struct {
	runtime *bedrockruntime.BedrockRuntime
	model   string
	family  Family
}

func NewBedrockClient(opts BedrockOptions) (*BedrockClient, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	family, err := FamilyForModel(opts.Model)
	if err != nil {
		return nil, err
	}

	awsCfg := aws.NewConfig().
		WithRegion(opts.Region).
		WithMaxRetries(0)
	if opts.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""))
	}
	if opts.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(opts.Endpoint)
	}
	if opts.HTTPClient != nil {
		awsCfg = awsCfg.WithHTTPClient(opts.HTTPClient)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("bedrock session: %w", err)
	}

	return &BedrockClient{
		runtime: bedrockruntime.New(sess),
		model:   opts.Model,
		family:  family,
	}, nil
}

func (c *BedrockClient) Provider() string { return "bedrock" }

func (c *BedrockClient) Family() Family { return c.family }

func (c *BedrockClient) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := EncodeRequest(c.family, p)
	if err != nil {
		return "", err
	}

	out, err := c.runtime.InvokeModelWithContext(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", classifyBedrockError(err)
	}

	reply, err := DecodeReply(c.family, out.Body)
	if err != nil {
		return "", err
	}
	return reply.Text()
}

// classifyBedrockError 限流映射为 ErrThrottled，其余带状态码的错误转为 StatusError
func classifyBedrockError(err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return fmt.Errorf("bedrock invoke: %w", err)
	}
	if aerr.Code() == bedrockruntime.ErrCodeThrottlingException {
		return fmt.Errorf("%w: bedrock %s", ErrThrottled, aerr.Message())
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode() == http.StatusTooManyRequests {
			return fmt.Errorf("%w: bedrock status %d", ErrThrottled, reqErr.StatusCode())
		}
		return &StatusError{
			Provider:   "bedrock",
			StatusCode: reqErr.StatusCode(),
			Body:       truncate(aerr.Code()+": "+aerr.Message(), 512),
		}
	}
	return fmt.Errorf("bedrock invoke: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsThrottled 判断错误是否由上游限流引起
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
