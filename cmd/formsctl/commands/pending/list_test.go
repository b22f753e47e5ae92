package pending

import (
	"testing"

	"github.com/marmos91/formsync/pkg/forms"
)

func TestSummaryListRows(t *testing.T) {
	list := SummaryList{
		{PendingTimestamp: "not-a-time", Definition: forms.Form{ID: 9}, FormsAppID: 7},
		{PendingTimestamp: "x", Definition: forms.Form{ID: 9, Name: "Inspection"}, FormsAppID: 7, Error: "boom"},
		{PendingTimestamp: "y", Definition: forms.Form{ID: 9}, FormsAppID: 7, IsSubmitting: true},
	}

	rows := list.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "not-a-time" || rows[0][1] != "9" || rows[0][3] != "waiting" || rows[0][4] != "-" {
		t.Errorf("unexpected row %v", rows[0])
	}
	if rows[1][1] != "Inspection" || rows[1][3] != "failed" || rows[1][4] != "boom" {
		t.Errorf("unexpected row %v", rows[1])
	}
	if rows[2][3] != "submitting" {
		t.Errorf("unexpected row %v", rows[2])
	}
	if len(list.Headers()) != len(rows[0]) {
		t.Error("headers and rows differ in width")
	}
}
