package seed

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
	"github.com/bcnelson/hackathon-manager/internal/storage/memory"
)

const sample = `
ideas:
  - name: Solar kites
    description: Kites that <b>charge</b> phones
    author: Alice@Example.com
  - name: Robot bees
projects:
  - name: Rocket stove
    description: Cook with less wood
    author: bob@example.com
`

func TestLoad(t *testing.T) {
	file, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(file.Ideas) != 2 || len(file.Projects) != 1 {
		t.Fatalf("unexpected file %+v", file)
	}
	if file.Ideas[0].Name != "Solar kites" || file.Ideas[0].Author != "Alice@Example.com" {
		t.Errorf("unexpected idea %+v", file.Ideas[0])
	}
	if file.Projects[0].Author != "bob@example.com" {
		t.Errorf("unexpected project %+v", file.Projects[0])
	}
}

func TestLoadEmpty(t *testing.T) {
	file, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(file.Ideas) != 0 || len(file.Projects) != 0 {
		t.Errorf("expected an empty file, got %+v", file)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "ideas:\n  - name: x\n    votes: 3\n"},
		{"empty idea name", "ideas:\n  - description: nameless\n"},
		{"bad author", "ideas:\n  - name: x\n    author: nobody\n"},
		{"empty project name", "projects:\n  - name: '  '\n"},
		{"not yaml", "ideas: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	svc := service.New(memory.New(), zap.NewNop(), service.Options{})

	file, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, err := Apply(ctx, svc, zap.NewNop(), file)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.IdeasCreated != 2 || res.ProjectsCreated != 1 || res.Skipped != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	ideas, _ := svc.Ideas.List(ctx)
	authors := map[string]domain.UserID{}
	for _, i := range ideas {
		authors[i.Name] = i.Author
	}
	if authors["Solar kites"] != "alice@example.com" || authors["Robot bees"] != "" {
		t.Errorf("unexpected authors %v", authors)
	}

	projects, _ := svc.Projects.List(ctx)
	if len(projects) != 1 || projects[0].Author != "bob@example.com" || projects[0].VoteCount() != 0 {
		t.Errorf("unexpected projects %+v", projects)
	}

	// a second run changes nothing
	res, err = Apply(ctx, svc, zap.NewNop(), file)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.IdeasCreated != 0 || res.ProjectsCreated != 0 || res.Skipped != 3 {
		t.Errorf("unexpected second result %+v", res)
	}
}
