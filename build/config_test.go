package build

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
)

func sampleConfig() *Config {
	return &Config{
		BuildingTask: "Find a recent paper about gpt-4 on arxiv",
		AgentConfigs: []AgentSpec{
			{Name: "Coder", Model: "gpt-4", SystemMessage: "You write python."},
			{Name: "Product_manager", Model: "meta-llama/Llama-2-7b-chat-hf", SystemMessage: "You plan."},
		},
		ManagerSystemMessage: "Group chat manager.",
		Coding:               true,
		DefaultLLMConfig:     map[string]any{"temperature": 0.0, "seed": 42.0},
	}
}

func TestDefaultPath(t *testing.T) {
	sum := md5.Sum([]byte("task"))
	assert.Equal(t, filepath.Join("out", "save_config_"+hex.EncodeToString(sum[:])+".json"), DefaultPath("out", "task"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := sampleConfig()

	path, err := Save(cfg, DefaultPath(dir, cfg.BuildingTask))
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"building_task", "agent_configs", "manager_system_message", "coding", "default_llm_config"}, keys(fields))
	assert.Contains(t, string(raw), `"system_message": "You write python."`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_DefaultPathInWorkingDir(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := sampleConfig()

	path, err := Save(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPath(".", cfg.BuildingTask), path)
	assert.FileExists(t, path)
}

func TestSave_RejectsWhatLoadRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")

	for _, task := range []string{"", "  \n"} {
		cfg := sampleConfig()
		cfg.BuildingTask = task
		_, err := Save(cfg, path)
		assert.ErrorIs(t, err, ErrEmptyTask)
		assert.NoFileExists(t, path)
	}

	noAgents := sampleConfig()
	noAgents.AgentConfigs = nil
	_, err := Save(noAgents, path)
	assert.Error(t, err)
	assert.NoFileExists(t, path)

	_, err = Parse([]byte(`{"building_task": "   ", "agent_configs": [{"name": "a", "model": "m", "system_message": ""}], "manager_system_message": "", "coding": false, "default_llm_config": {}}`))
	assert.ErrorIs(t, err, ErrEmptyTask)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var nf *core.ConfigNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Path, "nope.json")
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing field":   `{"building_task": "t", "agent_configs": [], "coding": false, "default_llm_config": {}}`,
		"wrong type":      `{"building_task": "t", "agent_configs": [{"name": "a", "model": "m", "system_message": ""}], "manager_system_message": "", "coding": "yes", "default_llm_config": {}}`,
		"agent no model":  `{"building_task": "t", "agent_configs": [{"name": "a", "system_message": ""}], "manager_system_message": "", "coding": false, "default_llm_config": {}}`,
		"duplicate names": `{"building_task": "t", "agent_configs": [{"name": "a", "model": "m", "system_message": ""}, {"name": "a", "model": "m", "system_message": ""}], "manager_system_message": "", "coding": false, "default_llm_config": {}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte(`{"building_task": "t", "agent_configs": [], "coding": false, "default_llm_config": {}}`))
	var verr *util.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfig_Roster(t *testing.T) {
	cfg := sampleConfig()
	roster := cfg.Roster()
	require.Len(t, roster, 4)
	assert.Equal(t, KindAssistant, roster[0].Kind)
	assert.Equal(t, KindAssistant, roster[1].Kind)
	assert.Equal(t, AgentSpec{Name: UserProxyName, SystemMessage: "A human admin.", Kind: KindUserProxy}, roster[2])
	assert.Equal(t, KindManager, roster[3].Kind)
	assert.Equal(t, UserProxyName, cfg.Initiator())

	cfg.Coding = false
	cfg.ManagerSystemMessage = ""
	roster = cfg.Roster()
	require.Len(t, roster, 3)
	assert.Equal(t, DefaultManagerSystemMessage, roster[2].SystemMessage)
	assert.Equal(t, "Coder", cfg.Initiator())
}

func TestConfig_Sampling(t *testing.T) {
	s := sampleConfig().Sampling()
	require.NotNil(t, s.Temperature)
	assert.Equal(t, 0.0, *s.Temperature)
	require.NotNil(t, s.Seed)
	assert.Equal(t, int64(42), *s.Seed)
	assert.Nil(t, s.TopP)
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
