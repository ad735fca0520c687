package endpoint

import "testing"

func TestParseServerless(t *testing.T) {
	got, err := ParseServerless("acct.us-east-1.redshift-serverless.amazonaws.com")
	if err != nil {
		t.Fatalf("ParseServerless: %v", err)
	}
	if got.AccountID != "acct" || got.Region != "us-east-1" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseServerlessRejectsNonServerlessHost(t *testing.T) {
	if _, err := ParseServerless("mycluster.abc123.us-east-1.redshift.amazonaws.com"); err == nil {
		t.Fatalf("expected error for non-serverless hostname")
	}
}
