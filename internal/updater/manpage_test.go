package updater

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/disperse/internal/version"
)

const bzrHeader = `.TH BZR 1 "2019-12-31" "Bazaar 2.7.0" "Bazaar Reference Manual"`

var releaseDay = time.Date(2020, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestManpageValidate_RequiresPlaceholder(t *testing.T) {
	t.Parallel()
	err := Manpage{}.Validate([]byte(bzrHeader + "\n"))
	if !errors.Is(err, ErrNoMatches) {
		t.Fatalf("Validate() = %v, want ErrNoMatches", err)
	}

	templated := `.TH BZR 1 "2019-12-31" "Bazaar $VERSION" "Bazaar Reference Manual"` + "\n"
	if err := (Manpage{}).Validate([]byte(templated)); err != nil {
		t.Errorf("Validate(templated) = %v, want nil", err)
	}
}

func TestManpageValidate_NoDirective(t *testing.T) {
	t.Parallel()
	for _, content := range []string{
		"",
		".SH NAME\nbzr \\- Bazaar\n",
		".TH BZR 1\n",
		`.TH BZR 1 "2019-12-31 "Bazaar $VERSION"` + "\n",
	} {
		if err := (Manpage{}).Validate([]byte(content)); !errors.Is(err, ErrNoMatches) {
			t.Errorf("Validate(%q) = %v, want ErrNoMatches", content, err)
		}
	}
}

func TestManpageUpdate(t *testing.T) {
	t.Parallel()
	in := bzrHeader + "\n.SH NAME\nbzr \\- Bazaar next-generation distributed version control\n"
	got, err := Manpage{}.Update([]byte(in), version.MustParse("2.8.0"), releaseDay)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := `.TH BZR 1 "2020-01-15" "Bazaar 2.8.0" "Bazaar Reference Manual"` +
		"\n.SH NAME\nbzr \\- Bazaar next-generation distributed version control\n"
	if string(got) != want {
		t.Errorf("Update() =\n%s\nwant\n%s", got, want)
	}
}

func TestManpageUpdate_Idempotent(t *testing.T) {
	t.Parallel()
	v := version.MustParse("2.8.0")
	once, err := Manpage{}.Update([]byte(bzrHeader+"\n"), v, releaseDay)
	if err != nil {
		t.Fatalf("first Update: %v", err)
	}
	twice, err := Manpage{}.Update(once, v, releaseDay)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if string(once) != string(twice) {
		t.Errorf("Update not idempotent:\n%s\n%s", once, twice)
	}
}

func TestManpageUpdate_DateLayouts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		date string
		want string
	}{
		{"iso", `"2019-12-31"`, `"2020-01-15"`},
		{"iso unquoted", `2019-12-31`, `2020-01-15`},
		{"month year", `"December 2019"`, `"January 2020"`},
		{"unrecognised left alone", `"sometime"`, `"sometime"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := `.TH FOO 1 ` + tt.date + ` "foo 1.0" "Foo Manual"`
			got, err := Manpage{}.Update([]byte(in), version.MustParse("1.1"), releaseDay)
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			want := `.TH FOO 1 ` + tt.want + ` "foo 1.1" "Foo Manual"`
			if string(got) != want {
				t.Errorf("Update() = %s, want %s", got, want)
			}
		})
	}
}

func TestManpageUpdate_Placeholder(t *testing.T) {
	t.Parallel()
	in := `.TH DISPERSE 1 "2024-01-01" "disperse $VERSION" "User Commands"` + "\n"
	got, err := Manpage{}.Update([]byte(in), version.MustParse("0.5.0"), releaseDay)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := `.TH DISPERSE 1 "2020-01-15" "disperse 0.5.0" "User Commands"` + "\n"
	if string(got) != want {
		t.Errorf("Update() = %s, want %s", got, want)
	}
}

func TestManpageUpdate_OnlyFirstDirective(t *testing.T) {
	t.Parallel()
	second := `.TH OTHER 5 "2018-01-01" "other 0.1" "Other"`
	in := bzrHeader + "\n" + second + "\n"
	got, err := Manpage{}.Update([]byte(in), version.MustParse("2.8.0"), releaseDay)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	lines := strings.Split(string(got), "\n")
	if lines[1] != second {
		t.Errorf("second directive changed to %q", lines[1])
	}
}

func TestManpageUpdate_PreservesSpacingAndLineEndings(t *testing.T) {
	t.Parallel()
	in := ".TH  BZR 1 \"2019-12-31\"  \"Bazaar 2.7.0\" \"Manual\" \r\n.SH NAME\r\n"
	got, err := Manpage{}.Update([]byte(in), version.MustParse("2.8.0"), releaseDay)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := ".TH  BZR 1 \"2020-01-15\"  \"Bazaar 2.8.0\" \"Manual\" \r\n.SH NAME\r\n"
	if string(got) != want {
		t.Errorf("Update() = %q, want %q", got, want)
	}
}

func TestManpageUpdate_NoDirective(t *testing.T) {
	t.Parallel()
	_, err := Manpage{}.Update([]byte(".SH NAME\n"), version.MustParse("1.0"), releaseDay)
	if !errors.Is(err, ErrNoMatches) {
		t.Errorf("Update() error = %v, want ErrNoMatches", err)
	}
}

func TestManpageUpdate_SourceWithoutVersion(t *testing.T) {
	t.Parallel()
	in := `.TH FOO 1 "sometime" "nothing here" "Manual"` + "\n"
	got, err := Manpage{}.Update([]byte(in), version.MustParse("1.0"), releaseDay)
	if !errors.Is(err, ErrNoMatches) {
		t.Fatalf("Update() = %q, %v, want ErrNoMatches", got, err)
	}
	if !strings.Contains(err.Error(), "nothing here") {
		t.Errorf("Update() error = %v, want it to name the source field", err)
	}
}

func TestFieldSet_QuotesValuesWithSpaces(t *testing.T) {
	t.Parallel()
	f := field{raw: "old", value: "old"}
	f.set("two words")
	if f.raw != `"two words"` {
		t.Errorf("raw = %s, want quoted", f.raw)
	}
}
