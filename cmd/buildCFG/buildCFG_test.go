package buildCFG

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/config"
)

func TestBuildSeedStudents(t *testing.T) {
	cfg := config.New()
	cfg.SetDefault("storage.seed_students", []string{
		"6f1c2b8e-3d4a-4f5b-9c6d-7e8f9a0b1c2d| Ada Lovelace |ada@campus.edu",
		"not-a-uuid|Bob|bob@campus.edu",
		"6f1c2b8e-3d4a-4f5b-9c6d-7e8f9a0b1c2e|Carol",
		"6f1c2b8e-3d4a-4f5b-9c6d-7e8f9a0b1c2f|Dan|no-email",
	})
	log := zerolog.Nop()

	students := BuildSeedStudents(cfg, &log)
	require.Len(t, students, 1)
	assert.Equal(t, "6f1c2b8e-3d4a-4f5b-9c6d-7e8f9a0b1c2d", students[0].ID.String())
	assert.Equal(t, "Ada Lovelace", students[0].Name)
	assert.Equal(t, "ada@campus.edu", students[0].Email)
}

func TestBuildSeedStudentsEmpty(t *testing.T) {
	log := zerolog.Nop()
	assert.Empty(t, BuildSeedStudents(config.New(), &log))
}
