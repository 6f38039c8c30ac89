package csv

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"

	"github.com/ArionMiles/homeplotter/pkg/logging"
)

var today = time.Date(2021, 2, 10, 15, 4, 5, 0, time.UTC)

func fixedNow() time.Time { return today }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReadBankExport(t *testing.T) {
	r := New(Config{FilePath: "testdata/personal.csv", Now: fixedNow}, logging.Discard())
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Saved() {
		t.Error("Saved() = true, want false for a bank export")
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}

	first := got[0]
	if !first.Date.Equal(date(2021, 1, 2)) {
		t.Errorf("date: got %v, want 2021-01-02", first.Date)
	}
	if !first.Amount.Equal(dec("-45.50")) || !first.AmountUnscaled.Equal(dec("-45.50")) {
		t.Errorf("amount: got %s/%s, want -45.50", first.Amount, first.AmountUnscaled)
	}
	if first.Text != "ICA Maxi" {
		t.Errorf("text: got %q, want %q", first.Text, "ICA Maxi")
	}
	if first.Account != "personal" {
		t.Errorf("account: got %q, want %q", first.Account, "personal")
	}
	if got[2].Text != "Lön" {
		t.Errorf("text: got %q, want %q", got[2].Text, "Lön")
	}
}

func TestReadDateAndAmountFormats(t *testing.T) {
	r := New(Config{FilePath: "testdata/card.csv", Account: "card", Now: fixedNow}, logging.Discard())
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := []struct {
		date   time.Time
		amount string
		text   string
	}{
		{date(2021, 2, 1), "-1234.50", "Max Burgers"},
		{date(2021, 2, 3), "-99", "Pizzeria; Napoli"},
		{date(2021, 2, 10), "-10", "Willys"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, w := range want {
		if !got[i].Date.Equal(w.date) {
			t.Errorf("[%d] date: got %v, want %v", i, got[i].Date, w.date)
		}
		if !got[i].Amount.Equal(dec(w.amount)) {
			t.Errorf("[%d] amount: got %s, want %s", i, got[i].Amount, w.amount)
		}
		if got[i].Text != w.text {
			t.Errorf("[%d] text: got %q, want %q", i, got[i].Text, w.text)
		}
		if got[i].Account != "card" {
			t.Errorf("[%d] account: got %q, want card", i, got[i].Account)
		}
	}
}

func TestReadSavedLedger(t *testing.T) {
	r := New(Config{FilePath: "testdata/saved.csv"}, logging.Discard())
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !r.Saved() {
		t.Error("Saved() = false, want true")
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}

	if !got[0].Amount.Equal(dec("-22.75")) || !got[0].AmountUnscaled.Equal(dec("-45.50")) {
		t.Errorf("amounts: got %s/%s, want -22.75/-45.50", got[0].Amount, got[0].AmountUnscaled)
	}
	if got[0].Account != "joint" {
		t.Errorf("account: got %q, want joint", got[0].Account)
	}

	tags := [][]string{{"Willys", "Mat"}, {}, {"SL", "Transport"}}
	for i, want := range tags {
		if !reflect.DeepEqual(got[i].Tags, want) {
			t.Errorf("[%d] tags: got %v, want %v", i, got[i].Tags, want)
		}
	}
}

func TestReadUTF16(t *testing.T) {
	content := "Datum;Belopp;Text\n2021-03-01;-5,00;Pressbyrån\n"
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	path := filepath.Join(t.TempDir(), "utf16.csv")
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := New(Config{FilePath: path}, logging.Discard()).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "Pressbyrån" {
		t.Fatalf("got %+v, want one Pressbyrån record", got)
	}
	if got[0].Account != "utf16" {
		t.Errorf("account: got %q, want utf16", got[0].Account)
	}
}

func TestReadConfiguredLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.csv")
	content := "Transaktionsdatum;Beskrivning;Summa\n2021-04-01;Hyra;-8000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := New(Config{FilePath: path}, logging.Discard()).Read(); !errors.Is(err, ErrUnsupportedLayout) {
		t.Fatalf("without layout: got %v, want %v", err, ErrUnsupportedLayout)
	}

	r := New(Config{
		FilePath: path,
		Layouts:  []Layout{{Date: "Transaktionsdatum", Amount: "Summa", Text: "Beskrivning"}},
	}, logging.Discard())
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "Hyra" || !got[0].Amount.Equal(dec("-8000")) {
		t.Errorf("got %+v, want one Hyra record of -8000", got[0])
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		file string
		want error
	}{
		{"testdata/unknown.csv", ErrUnsupportedLayout},
		{"testdata/bad_amount.csv", ErrInvalidAmount},
		{"testdata/missing.csv", os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := New(Config{FilePath: tt.file}, logging.Discard()).Read()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadErrorReportsLine(t *testing.T) {
	_, err := New(Config{FilePath: "testdata/bad_amount.csv"}, logging.Discard()).Read()
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("got %v, want error mentioning line 3", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2021-01-31", date(2021, 1, 31), false},
		{"2021/01/31", date(2021, 1, 31), false},
		{"2021.01.31", date(2021, 1, 31), false},
		{"Reserverat", date(2021, 2, 10), false},
		{" 2021-01-31 ", date(2021, 1, 31), false},
		{"31/01/2021", time.Time{}, true},
		{"igår", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, fixedNow)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("got %v, want %v", err, ErrInvalidDate)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-45,50", "-45.5"},
		{"1 234,50 kr", "1234.5"},
		{"-1 000 kr", "-1000"},
		{"-2\u00a0500,00", "-2500"},
		{"12.5", "12.5"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if err != nil {
				t.Fatalf("ParseAmount() error = %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := ParseAmount("tolv"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("got %v, want %v", err, ErrInvalidAmount)
	}
}
