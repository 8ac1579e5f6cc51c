package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoSettings configures the Cognito provider.
type CognitoSettings struct {
	Region     string
	UserPoolID string
	ClientID   string
}

// cognitoAPI is the slice of the Cognito IDP client the provider uses.
type cognitoAPI interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cognitoidentityprovider.ResendConfirmationCodeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ResendConfirmationCodeOutput, error)
}

// CognitoProvider drives phone verification through a Cognito user pool's
// sign-up confirmation flow: SignUp triggers the SMS code, ConfirmSignUp
// checks it. Existing users get a fresh code via ResendConfirmationCode.
type CognitoProvider struct {
	clientID string
	api      cognitoAPI
}

// NewCognitoProvider creates a CognitoProvider using the default AWS
// credential chain.
func NewCognitoProvider(ctx context.Context, settings CognitoSettings) (*CognitoProvider, error) {
	if settings.UserPoolID == "" || settings.ClientID == "" {
		return nil, fmt.Errorf("cognito user pool ID and client ID are required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &CognitoProvider{
		clientID: settings.ClientID,
		api:      cognitoidentityprovider.NewFromConfig(cfg),
	}, nil
}

// SendChallenge signs the phone number up, which makes Cognito deliver a
// confirmation code by SMS. An already-registered number gets a resend
// instead.
func (p *CognitoProvider) SendChallenge(ctx context.Context, phone string) error {
	password, err := generateTempPassword()
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}

	_, err = p.api.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId: aws.String(p.clientID),
		Username: aws.String(phone),
		Password: aws.String(password),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("phone_number"), Value: aws.String(phone)},
		},
	})
	if err == nil {
		return nil
	}

	var exists *types.UsernameExistsException
	if errors.As(err, &exists) {
		_, err = p.api.ResendConfirmationCode(ctx, &cognitoidentityprovider.ResendConfirmationCodeInput{
			ClientId: aws.String(p.clientID),
			Username: aws.String(phone),
		})
		if err != nil {
			return mapCognitoError(err)
		}
		return nil
	}
	return mapCognitoError(err)
}

// VerifyChallenge confirms the sign-up with the SMS code.
func (p *CognitoProvider) VerifyChallenge(ctx context.Context, phone, code string) error {
	_, err := p.api.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(phone),
		ConfirmationCode: aws.String(code),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func mapCognitoError(err error) error {
	var (
		mismatch    *types.CodeMismatchException
		expired     *types.ExpiredCodeException
		notFound    *types.UserNotFoundException
		limit       *types.LimitExceededException
		throttled   *types.TooManyRequestsException
		maxAttempts *types.TooManyFailedAttemptsException
	)
	switch {
	case errors.As(err, &mismatch):
		return ErrInvalidCode
	case errors.As(err, &expired):
		return ErrChallengeExpired
	case errors.As(err, &notFound):
		return ErrChallengeNotFound
	case errors.As(err, &limit), errors.As(err, &throttled), errors.As(err, &maxAttempts):
		return ErrTooManyAttempts
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

// generateTempPassword builds a random throwaway password satisfying the
// usual pool policy (upper, lower, digit, symbol).
func generateTempPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "Aa1!" + base64.RawURLEncoding.EncodeToString(buf), nil
}
