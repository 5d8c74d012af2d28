package cloudauth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ezvizgo/cloudauth/session"
)

// BizType tags a one-time-code request so the account's registered
// channel receives the right message.
type BizType string

const (
	// BizLogin marks a code protecting the account login.
	BizLogin BizType = "TERMINAL_BIND"
	// BizDeviceAuth marks a code protecting a device credential fetch.
	BizDeviceAuth BizType = "DEVICE_AUTH_CODE"
)

// Cloud service meta codes. The service answers HTTP 200 for most
// outcomes and signals the real result here.
const (
	apiCodeOK              = 200
	apiCodeMFARequired     = 6002
	apiCodeWrongRegion     = 1100
	apiCodeBadAccount      = 1012
	apiCodeUserNotFound    = 1013
	apiCodeWrongPassword   = 1014
	apiCodeSessionExpired  = 10002
	apiCodeDeviceRejected  = 2009
	apiCodeDeviceNotExists = 2003
)

type loginReply struct {
	SessionID        string
	RefreshSessionID string
	AccountUserID    string
}

// CloudAPI is the wire surface of the cloud service consumed by this
// package. Implementations map wire outcomes onto the package error
// taxonomy; tests substitute fakes.
type CloudAPI interface {
	Login(ctx context.Context, apiHost, account, secret, otp string) (*loginReply, error)
	SendOTP(ctx context.Context, sess *session.Session, apiHost, account string, biz BizType) error
	FetchVerificationCode(ctx context.Context, sess *session.Session, serial, otp string) (string, error)
	FetchEncryptionKey(ctx context.Context, sess *session.Session, serial, otp string) (string, error)
	WakeDevice(ctx context.Context, sess *session.Session, serial string) error
}

// httpAPI is the production CloudAPI over HTTPS.
type httpAPI struct {
	http      *http.Client
	userAgent string
	// featureCode identifies this client installation to the cloud
	// service; stable for the life of the process.
	featureCode string
}

func newHTTPAPI(cfg TransportConfig) *httpAPI {
	return &httpAPI{
		http:        &http.Client{Timeout: cfg.Timeout},
		userAgent:   cfg.UserAgent,
		featureCode: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

type metaEnvelope struct {
	Meta struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"meta"`
}

func hashSecret(secret string) string {
	sum := md5.Sum([]byte(secret)) // wire format requirement, not storage
	return hex.EncodeToString(sum[:])
}

func (a *httpAPI) do(ctx context.Context, sess *session.Session, method, rawURL string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("clientType", "3")
	req.Header.Set("featureCode", a.featureCode)
	req.Header.Set("requestId", uuid.NewString())
	if sess != nil {
		req.Header.Set("sessionId", sess.SessionID)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrTransport, resp.StatusCode)
	}
	return data, nil
}

// classifyMeta maps a service meta code onto the error taxonomy. A zero
// return means the call succeeded.
func classifyMeta(code int, message string) error {
	switch code {
	case apiCodeOK:
		return nil
	case apiCodeMFARequired:
		return ErrMFARequired
	case apiCodeWrongRegion:
		return fmt.Errorf("%w: account registered in another region", ErrInvalidHost)
	case apiCodeBadAccount, apiCodeUserNotFound, apiCodeWrongPassword:
		return ErrInvalidCredentials
	case apiCodeSessionExpired:
		return ErrSessionExpired
	case apiCodeDeviceRejected, apiCodeDeviceNotExists:
		return fmt.Errorf("%w: service code %d", ErrDevice, code)
	default:
		return fmt.Errorf("%w: service code %d %q", ErrTransport, code, message)
	}
}

func (a *httpAPI) Login(ctx context.Context, apiHost, account, secret, otp string) (*loginReply, error) {
	form := url.Values{}
	form.Set("account", account)
	form.Set("password", hashSecret(secret))
	if otp != "" {
		form.Set("smsCode", otp)
	}

	data, err := a.do(ctx, nil, http.MethodPost, "https://"+apiHost+"/v3/users/login/v4", form)
	if err != nil {
		return nil, err
	}

	var reply struct {
		metaEnvelope
		LoginSession struct {
			SessionID   string `json:"sessionId"`
			RfSessionID string `json:"rfSessionId"`
		} `json:"loginSession"`
		LoginUser struct {
			Username string `json:"username"`
		} `json:"loginUser"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := classifyMeta(reply.Meta.Code, reply.Meta.Message); err != nil {
		return nil, err
	}
	if reply.LoginSession.SessionID == "" || reply.LoginSession.RfSessionID == "" {
		return nil, fmt.Errorf("%w: login response missing token pair", ErrTransport)
	}
	return &loginReply{
		SessionID:        reply.LoginSession.SessionID,
		RefreshSessionID: reply.LoginSession.RfSessionID,
		AccountUserID:    reply.LoginUser.Username,
	}, nil
}

func (a *httpAPI) SendOTP(ctx context.Context, sess *session.Session, apiHost, account string, biz BizType) error {
	form := url.Values{}
	form.Set("account", account)
	form.Set("bizType", string(biz))

	data, err := a.do(ctx, sess, http.MethodPost, "https://"+apiHost+"/v3/sms/nologin/checkcode", form)
	if err != nil {
		return err
	}
	var reply metaEnvelope
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return classifyMeta(reply.Meta.Code, reply.Meta.Message)
}

func (a *httpAPI) FetchVerificationCode(ctx context.Context, sess *session.Session, serial, otp string) (string, error) {
	form := url.Values{}
	if otp != "" {
		form.Set("msgAuthCode", otp)
		form.Set("senderType", "0")
	} else {
		form.Set("senderType", "3")
	}

	data, err := a.do(ctx, sess, http.MethodPost,
		"https://"+sess.APIHost+"/v3/devices/"+url.PathEscape(serial)+"/authcode", form)
	if err != nil {
		return "", err
	}

	var reply struct {
		metaEnvelope
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := classifyMeta(reply.Meta.Code, reply.Meta.Message); err != nil {
		return "", err
	}
	if reply.Data == "" {
		return "", fmt.Errorf("%w: empty verification code", ErrTransport)
	}
	return reply.Data, nil
}

func (a *httpAPI) FetchEncryptionKey(ctx context.Context, sess *session.Session, serial, otp string) (string, error) {
	form := url.Values{}
	form.Set("deviceSerial", serial)
	if otp != "" {
		form.Set("smsCode", otp)
	}

	data, err := a.do(ctx, sess, http.MethodPost,
		"https://"+sess.APIHost+"/v3/devices/search/encryptkey", form)
	if err != nil {
		return "", err
	}

	var reply struct {
		metaEnvelope
		EncryptKey string `json:"encryptKey"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := classifyMeta(reply.Meta.Code, reply.Meta.Message); err != nil {
		return "", err
	}
	if reply.EncryptKey == "" {
		return "", fmt.Errorf("%w: empty encryption key", ErrTransport)
	}
	return reply.EncryptKey, nil
}

// WakeDevice issues the cheapest authenticated read the service offers
// for a device. The payload is discarded; the point is waking a
// hibernating device before a stream probe.
func (a *httpAPI) WakeDevice(ctx context.Context, sess *session.Session, serial string) error {
	data, err := a.do(ctx, sess, http.MethodGet,
		"https://"+sess.APIHost+"/v3/devices/"+url.PathEscape(serial)+"/sensibility", nil)
	if err != nil {
		return err
	}
	var reply metaEnvelope
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return classifyMeta(reply.Meta.Code, reply.Meta.Message)
}
