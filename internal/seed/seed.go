// Package seed preloads a hackathon with ideas and projects from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/service"
	"github.com/bcnelson/hackathon-manager/internal/validation"
)

// File is the seed file layout:
//
//	ideas:
//	  - name: Solar kites
//	    description: Kites that charge phones
//	    author: alice@example.com
//	projects:
//	  - name: Rocket stove
type File struct {
	Ideas    []Idea                        `yaml:"ideas"`
	Projects []domain.CreateProjectRequest `yaml:"projects"`
}

// Idea is an idea entry. An empty author posts it anonymously.
type Idea struct {
	domain.CreateIdeaRequest `yaml:",inline"`
	Author                   string `yaml:"author"`
}

// Result counts what Apply did.
type Result struct {
	IdeasCreated    int
	ProjectsCreated int
	Skipped         int
}

// LoadFile reads and validates a seed file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads and validates a seed file from r.
func Load(r io.Reader) (*File, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	for i, idea := range file.Ideas {
		if err := validation.ValidateIdea(idea.Name, idea.Description); err != nil {
			return nil, fmt.Errorf("invalid idea at index %d: %w", i, err)
		}
		if idea.Author != "" {
			if err := validation.ValidateEmail(idea.Author); err != nil {
				return nil, fmt.Errorf("invalid idea at index %d: author: %w", i, err)
			}
		}
	}
	for i, p := range file.Projects {
		if err := validation.ValidateIdea(p.Name, p.Description); err != nil {
			return nil, fmt.Errorf("invalid project at index %d: %w", i, err)
		}
	}
	return &file, nil
}

// Apply submits the ideas and creates the projects through the workflows,
// acting as an administrator. Entries whose name matches an existing idea or
// project are skipped, so a file can be applied more than once.
func Apply(ctx context.Context, svc *service.Services, log *zap.Logger, file *File) (Result, error) {
	var res Result

	existing, err := existingNames(ctx, svc)
	if err != nil {
		return res, err
	}

	admin := domain.Actor{User: "seed", Admin: true}
	for _, idea := range file.Ideas {
		key := nameKey(idea.Name)
		if existing[key] {
			res.Skipped++
			continue
		}
		actor := domain.Actor{User: auth.UserFromExternalID(idea.Author)}
		var n notice.Notices
		if _, err := svc.Ideas.Submit(ctx, actor, idea.CreateIdeaRequest, &n); err != nil {
			return res, fmt.Errorf("seeding idea %q: %w", idea.Name, err)
		}
		existing[key] = true
		res.IdeasCreated++
		log.Debug("seeded idea", zap.String("name", idea.Name))
	}

	for _, p := range file.Projects {
		key := nameKey(p.Name)
		if existing[key] {
			res.Skipped++
			continue
		}
		var n notice.Notices
		if _, err := svc.Projects.Create(ctx, admin, p, &n); err != nil {
			return res, fmt.Errorf("seeding project %q: %w", p.Name, err)
		}
		existing[key] = true
		res.ProjectsCreated++
		log.Debug("seeded project", zap.String("name", p.Name))
	}

	log.Info("seed applied",
		zap.Int("ideas", res.IdeasCreated),
		zap.Int("projects", res.ProjectsCreated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func existingNames(ctx context.Context, svc *service.Services) (map[string]bool, error) {
	names := make(map[string]bool)
	ideas, err := svc.Ideas.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}
	for _, i := range ideas {
		names[nameKey(i.Name)] = true
	}
	projects, err := svc.Projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	for _, p := range projects {
		names[nameKey(p.Name)] = true
	}
	return names, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
