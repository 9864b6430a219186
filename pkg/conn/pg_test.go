package conn

import "testing"

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
		want string
	}{
		{
			name: "conn string wins",
			opt:  Option{ConnString: "postgres://u:p@db:5432/trader", Host: "ignored"},
			want: "postgres://u:p@db:5432/trader",
		},
		{
			name: "defaults",
			opt:  Option{Database: "trader"},
			want: "postgres://localhost:5432/trader?sslmode=disable",
		},
		{
			name: "user and password",
			opt:  Option{Host: "db", User: "bot", Password: "secret", Database: "trader", SSLMode: "require"},
			want: "postgres://bot:secret@db:5432/trader?sslmode=require",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.opt.dsn(); got != tc.want {
				t.Fatalf("dsn = %s, want %s", got, tc.want)
			}
		})
	}
}
