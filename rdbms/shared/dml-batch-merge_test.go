package shared

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/odsync/logger"
)

func TestSqlServerMergeFromStaging(t *testing.T) {
	log := logger.NewTestLogger(ioutil.Discard)

	omKeys := ordered_map.NewOrderedMap()
	omKeys.Set("client_id", "client_id")
	omCols := ordered_map.NewOrderedMap()
	omCols.Set("name", "name")
	omCols.Set("hashdiff", "hashdiff")

	db := NewMockConnection("sqlserver")
	o, err := db.GetDmlGenerator().NewMergeGenerator(&SqlStatementGeneratorConfig{
		Log:             log,
		OutputSchema:    "ods",
		OutputTable:     "client",
		SourceSchema:    "stg",
		SourceTable:     "client",
		TargetKeyCols:   omKeys,
		TargetOtherCols: omCols,
		ChangeCol:       "hashdiff",
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := `merge into [ods].[client] with (holdlock) as tgt
using [stg].[client] as src
on (tgt.[client_id] = src.[client_id])
when matched and tgt.[hashdiff] <> src.[hashdiff] then update set
tgt.[name] = src.[name],
tgt.[hashdiff] = src.[hashdiff]
when not matched by target then insert
([client_id],[name],[hashdiff])
values (src.[client_id],src.[name],src.[hashdiff]);`
	got := o.GetStatement()
	if got != expected {
		t.Fatalf("expected:\n%v\ngot:\n%v", expected, got)
	}
	if o.GetStatement() != got {
		t.Fatal("expected cached statement on second call")
	}
}

func TestSqlServerMergeCompositeKey(t *testing.T) {
	log := logger.NewTestLogger(ioutil.Discard)
	db := NewMockConnection("sqlserver")
	keys := ordered_map.NewOrderedMap()
	keys.Set("a", "a")
	keys.Set("b", "b")
	others := ordered_map.NewOrderedMap()
	others.Set("hashdiff", "hashdiff")
	o, err := db.GetDmlGenerator().NewMergeGenerator(&SqlStatementGeneratorConfig{
		Log: log, OutputSchema: "ods", OutputTable: "t", SourceSchema: "stg", SourceTable: "t",
		TargetKeyCols: keys, TargetOtherCols: others, ChangeCol: "hashdiff",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(o.GetStatement(), "on (tgt.[a] = src.[a] and tgt.[b] = src.[b])") {
		t.Fatalf("composite key join not generated: %v", o.GetStatement())
	}
}

func TestSqlServerMergeRequiresKeys(t *testing.T) {
	log := logger.NewTestLogger(ioutil.Discard)
	others := ordered_map.NewOrderedMap()
	others.Set("x", "x")
	_, err := (&DmlGeneratorTxtBatch{}).NewMergeGenerator(&SqlStatementGeneratorConfig{
		Log: log, OutputTable: "t", SourceTable: "t", TargetOtherCols: others, ChangeCol: "hashdiff",
	})
	if err == nil {
		t.Fatal("expected error for a MERGE without key columns")
	}
}

func TestSqlServerMergeCountActions(t *testing.T) {
	log := logger.NewTestLogger(ioutil.Discard)
	keys := ordered_map.NewOrderedMap()
	keys.Set("id", "id")
	others := ordered_map.NewOrderedMap()
	others.Set("hashdiff", "hashdiff")
	o, err := (&DmlGeneratorTxtBatch{}).NewMergeGenerator(&SqlStatementGeneratorConfig{
		Log: log, OutputSchema: "ods", OutputTable: "t", SourceSchema: "stg", SourceTable: "t",
		TargetKeyCols: keys, TargetOtherCols: others, ChangeCol: "hashdiff", CountActions: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := o.GetStatement()
	if !strings.HasPrefix(got, "declare @merge_actions table") {
		t.Fatalf("expected action table declaration: %v", got)
	}
	if !strings.Contains(got, "values (src.[id],src.[hashdiff])\noutput $action into @merge_actions;") {
		t.Fatalf("expected OUTPUT clause before the terminator: %v", got)
	}
	if !strings.HasSuffix(got, "from @merge_actions;") {
		t.Fatalf("expected counts query at the end: %v", got)
	}
}
