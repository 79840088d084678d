package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToExpression(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		want     string
		tz       string
	}{
		{"every five minutes", "*/5 * * * *", "cron(*/5 * * * ? *)", ""},
		{"daily at 06:30", "30 6 * * *", "cron(30 6 * * ? *)", ""},
		{"first of month", "0 0 1 * *", "cron(0 0 1 * ? *)", ""},
		{"weekdays", "0 9 * * 1-5", "cron(0 9 ? * 2-6 *)", ""},
		{"sunday numeric", "0 9 * * 0", "cron(0 9 ? * 1 *)", ""},
		{"saturday and sunday list", "0 9 * * 6,0", "cron(0 9 ? * 7,1 *)", ""},
		{"weekday names", "0 9 * * mon-fri", "cron(0 9 ? * MON-FRI *)", ""},
		{"hourly descriptor", "@hourly", "cron(0 * * * ? *)", ""},
		{"weekly descriptor", "@weekly", "cron(0 0 ? * 1 *)", ""},
		{"every 15m", "@every 15m", "rate(15 minutes)", ""},
		{"every 1h", "@every 1h", "rate(1 hour)", ""},
		{"every 90m", "@every 1h30m", "rate(90 minutes)", ""},
		{"every 48h", "@every 48h", "rate(2 days)", ""},
		{"native cron passthrough", "cron(0 12 * * ? *)", "cron(0 12 * * ? *)", ""},
		{"native rate passthrough", "rate(1 day)", "rate(1 day)", ""},
		{"timezone prefix", "CRON_TZ=Europe/Berlin 0 7 * * *", "cron(0 7 * * ? *)", "Europe/Berlin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToExpression(tt.schedule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.tz, got.Timezone)
		})
	}
}

func TestToExpression_Errors(t *testing.T) {
	for _, schedule := range []string{
		"* * *",
		"0 0 1 * 1",
		"@every 30s",
		"@every 90s",
		"@fortnightly",
		"0 0 * * 9",
		"TZ=UTC",
	} {
		t.Run(schedule, func(t *testing.T) {
			_, err := ToExpression(schedule)
			assert.Error(t, err)
		})
	}
}
