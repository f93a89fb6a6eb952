package blocked

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgharvest/pkg/browser"
	"imgharvest/pkg/browser/browsertest"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

func snap(t *testing.T, pageURL, body string) browser.Snapshot {
	t.Helper()
	s, err := browser.NewSnapshot("<html><body>"+body+"</body></html>", pageURL)
	require.NoError(t, err)
	return s
}

func TestDetect(t *testing.T) {
	d := NewDetector()
	results := "https://yandex.ru/images/search?text=bear"

	tests := []struct {
		name    string
		pageURL string
		body    string
		want    bool
	}{
		{"results page", results, `<img src="https://a.example/1.jpg"><p>Brown bears</p>`, false},
		{"inline script mentions captcha", results, `<script>window.cfg={captchaUrl:"/showcaptcha"};</script><a href="/images/search?img_url=https%3A%2F%2Fa.example%2Fcat.jpg">cat</a>`, false},
		{"style mentions captcha", results, `<style>.captcha-hint{color:red}</style><p>Brown bears</p>`, false},
		{"text marker", results, `<h1>Are you a ROBOT?</h1>`, true},
		{"russian marker", results, `<p>Подтвердите, что запросы отправляли вы, а не робот</p>`, true},
		{"unusual traffic", results, `<p>Our systems have detected unusual traffic</p>`, true},
		{"captcha url", "https://yandex.ru/showcaptcha?retpath=x", ``, true},
		{"captcha form", results, `<form action="/checkcaptcha"><input></form>`, true},
		{"captcha iframe", results, `<iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe>`, true},
		{"checkbox widget", results, `<div class="CheckboxCaptcha"></div>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(snap(t, tt.pageURL, tt.body)))
		})
	}
}

func TestReason(t *testing.T) {
	reason, ok := NewDetector().Reason(snap(t, "https://yandex.ru/showcaptcha", ""))
	assert.True(t, ok)
	assert.Equal(t, "url:showcaptcha", reason)
}

func TestWaitRecovererClears(t *testing.T) {
	drv := &browsertest.Driver{
		FrameFunc: func(_, snapshots int) browsertest.Frame {
			if snapshots < 2 {
				return browsertest.Frame{URL: "https://yandex.ru/showcaptcha", HTML: "<p>captcha</p>"}
			}
			return browsertest.Frame{URL: "https://yandex.ru/images/search", HTML: "<p>results</p>"}
		},
	}

	tl := logger.NewTestLogger()
	r := NewWaitRecoverer(NewDetector(), time.Second, 5*time.Millisecond, tl)
	require.NoError(t, r.Recover(context.Background(), drv))
	assert.True(t, tl.HasMessage("Challenge cleared"))
}

func TestWaitRecovererTimeout(t *testing.T) {
	drv := browsertest.NewDriver(browsertest.Frame{URL: "https://yandex.ru/showcaptcha", HTML: "<p>captcha</p>"})

	r := NewWaitRecoverer(NewDetector(), 30*time.Millisecond, 5*time.Millisecond, nil)
	err := r.Recover(context.Background(), drv)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeBlockedPage))
}

func TestRecovererFunc(t *testing.T) {
	called := false
	var r Recoverer = RecovererFunc(func(ctx context.Context, d browser.Driver) error {
		called = true
		return nil
	})
	require.NoError(t, r.Recover(context.Background(), browsertest.NewDriver()))
	assert.True(t, called)
}

func TestWaitRecovererWarnsWhenHeadless(t *testing.T) {
	drv := browsertest.NewDriver(browsertest.Frame{URL: "https://yandex.ru/showcaptcha", HTML: "<p>captcha</p>"})
	const warning = "Browser is headless, the challenge cannot be solved by hand; run with headless off to solve it"

	for _, headless := range []bool{true, false} {
		tl := logger.NewTestLogger()
		r := NewWaitRecoverer(NewDetector(), 10*time.Millisecond, 5*time.Millisecond, tl)
		r.Headless = headless

		require.Error(t, r.Recover(context.Background(), drv))
		assert.Equal(t, headless, tl.HasMessage(warning))
	}
}
