package search

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Nguyễn Văn A", "nguyen van a"},
		{"  Trần   Thị  Bích ", "tran thi bich"},
		{"HOANG", "hoang"},
		{"", ""},
		{"Đặng", "đang"},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
