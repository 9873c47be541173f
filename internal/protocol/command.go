// Package protocol defines the command/event contract between front ends and
// the task engine. Both Command and UiEvent carry externally tagged unions on
// the wire: the variant name is the single key of a JSON object.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command is a unit of work submitted by a front end.
type Command struct {
	TaskID uint64
	Type   CmdType
}

// CmdType is one of ExecuteSQL, ImportFile, ExportFile or Cancel.
type CmdType interface {
	cmdName() string
}

// ExecuteSQL runs an arbitrary statement and reports its result.
type ExecuteSQL struct {
	SQL string `json:"sql"`
}

// ImportFile bulk-loads a file into a table. TableName is optional; when nil
// the table is named after the file. An empty Format is inferred from Path.
type ImportFile struct {
	Path      string  `json:"path"`
	Format    Format  `json:"format,omitempty"`
	TableName *string `json:"table_name,omitempty"`
	Overwrite bool    `json:"overwrite"`
}

// ExportFile unloads a table or a query result to a file.
type ExportFile struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Format Format `json:"format,omitempty"`
}

// Cancel asks a running task to stop at its next safe point.
type Cancel struct {
	TaskID uint64 `json:"task_id"`
}

func (ExecuteSQL) cmdName() string { return "ExecuteSql" }
func (ImportFile) cmdName() string { return "ImportFile" }
func (ExportFile) cmdName() string { return "ExportFile" }
func (Cancel) cmdName() string     { return "Cancel" }

// Name returns the wire name of the command variant.
func (c Command) Name() string {
	if c.Type == nil {
		return ""
	}
	return c.Type.cmdName()
}

type commandWire struct {
	TaskID  uint64                     `json:"task_id"`
	CmdType map[string]json.RawMessage `json:"cmd_type"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	if c.Type == nil {
		return nil, errors.New("command has no type")
	}
	body, err := json.Marshal(c.Type)
	if err != nil {
		return nil, err
	}
	return json.Marshal(commandWire{
		TaskID:  c.TaskID,
		CmdType: map[string]json.RawMessage{c.Type.cmdName(): body},
	})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.CmdType) != 1 {
		return fmt.Errorf("cmd_type must have exactly one variant, got %d", len(w.CmdType))
	}
	for name, body := range w.CmdType {
		var (
			typ CmdType
			err error
		)
		switch name {
		case "ExecuteSql":
			var v ExecuteSQL
			err = json.Unmarshal(body, &v)
			typ = v
		case "ImportFile":
			var v ImportFile
			err = json.Unmarshal(body, &v)
			typ = v
		case "ExportFile":
			var v ExportFile
			err = json.Unmarshal(body, &v)
			typ = v
		case "Cancel":
			var v Cancel
			err = json.Unmarshal(body, &v)
			typ = v
		default:
			return fmt.Errorf("unknown cmd_type %q", name)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		c.TaskID = w.TaskID
		c.Type = typ
	}
	return nil
}
