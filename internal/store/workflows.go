package store

import (
	"database/sql"
	"fmt"
	"time"
)

type WorkflowRun struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Subtasks  []Subtask `json:"subtasks"`
	CreatedAt time.Time `json:"created_at"`
}

type Subtask struct {
	ID              string `json:"id"`
	Position        int    `json:"position"`
	Description     string `json:"description"`
	AssignedAgentID string `json:"assigned_agent_id"`
	Status          string `json:"status"`
	Result          string `json:"result,omitempty"`
}

// SaveWorkflowRun inserts a run together with its subtasks.
func (s *Store) SaveWorkflowRun(run *WorkflowRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO workflow_runs (id, message_id, channel, task, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.MessageID, run.Channel, run.Task, run.Status)
	if err != nil {
		return fmt.Errorf("save workflow run: %w", err)
	}

	for i, st := range run.Subtasks {
		_, err := tx.Exec(`
			INSERT INTO subtasks (id, run_id, position, description, assigned_agent_id, status, result)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.ID, run.ID, i, st.Description, st.AssignedAgentID, st.Status, st.Result)
		if err != nil {
			return fmt.Errorf("save subtask %s: %w", st.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetWorkflowRun(id string) (*WorkflowRun, error) {
	run := &WorkflowRun{}
	err := s.db.QueryRow(`
		SELECT id, message_id, channel, task, status, created_at
		FROM workflow_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.MessageID, &run.Channel, &run.Task, &run.Status, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow run: %w", err)
	}

	run.Subtasks, err = s.getSubtasks(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) ListWorkflowRuns(limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, message_id, channel, task, status, created_at
		FROM workflow_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []WorkflowRun
	for rows.Next() {
		var r WorkflowRun
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Channel, &r.Task, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) getSubtasks(runID string) ([]Subtask, error) {
	rows, err := s.db.Query(`
		SELECT id, position, description, assigned_agent_id, status, result
		FROM subtasks WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("get subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []Subtask
	for rows.Next() {
		var st Subtask
		var result sql.NullString
		if err := rows.Scan(&st.ID, &st.Position, &st.Description, &st.AssignedAgentID, &st.Status, &result); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		st.Result = result.String
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

// UpdateSubtask records a status transition reported by a subtask executor.
func (s *Store) UpdateSubtask(id, status, result string) error {
	res, err := s.db.Exec(`UPDATE subtasks SET status = ?, result = ? WHERE id = ?`, status, result, id)
	if err != nil {
		return fmt.Errorf("update subtask: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subtask %s not found", id)
	}
	return nil
}
