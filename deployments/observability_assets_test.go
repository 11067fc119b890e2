package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	rules := loadRuleFile(t, "castdb_rules.yaml")

	alerts := map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Alert == "" {
				continue
			}
			if rule.Labels["severity"] == "" {
				t.Fatalf("alert %q has no severity label", rule.Alert)
			}
			alerts[rule.Alert] = rule.Expr
		}
	}

	requiredAlerts := []string{
		"CastDBStoreUnavailable",
		"CastDBExerciseLatencyP95High",
		"CastDBDatabaseErrorsDetected",
		"CastDBIntegrityRunFailed",
		"CastDBIntegrityViolationsDetected",
		"CastDBFixtureFilesMissing",
		"CastDBHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if _, ok := alerts[alertName]; !ok {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestAlertsOnlyReferenceRecordedSeries(t *testing.T) {
	records := map[string]bool{}
	for _, group := range loadRuleFile(t, "castdb_recording_rules.yaml").Groups {
		for _, rule := range group.Rules {
			if rule.Record != "" {
				records[rule.Record] = true
			}
		}
	}
	for _, group := range loadRuleFile(t, "castdb_rules.yaml").Groups {
		for _, rule := range group.Rules {
			series := strings.Fields(rule.Expr)[0]
			if !records[series] {
				t.Fatalf("alert %q references %q which is not a recording rule", rule.Alert, series)
			}
		}
	}
}

func TestRecordingRulesUseExportedMetrics(t *testing.T) {
	exported := []string{
		"castdb_exercise_duration_seconds",
		"castdb_exercise_runs_total",
		"castdb_integrity_runs_total",
		"castdb_integrity_violations_total",
		"castdb_integrity_missing_fixture_files_total",
		"castdb_http_requests_total",
	}
	for _, group := range loadRuleFile(t, "castdb_recording_rules.yaml").Groups {
		for _, rule := range group.Rules {
			found := false
			for _, metric := range exported {
				if strings.Contains(rule.Expr, metric) {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("record %q uses no exported castdb metric: %s", rule.Record, rule.Expr)
			}
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml"))
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	var scrape struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &scrape); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if len(scrape.ScrapeConfigs) != 1 || scrape.ScrapeConfigs[0].JobName != "castdb-api" {
		t.Fatalf("scrape configs = %+v", scrape.ScrapeConfigs)
	}
	if scrape.ScrapeConfigs[0].MetricsPath != "/v1/metrics" {
		t.Fatalf("metrics_path = %q", scrape.ScrapeConfigs[0].MetricsPath)
	}
	if strings.Join(scrape.RuleFiles, ",") != "castdb_recording_rules.yaml,castdb_rules.yaml" {
		t.Fatalf("rule_files = %v", scrape.RuleFiles)
	}
}

func loadRuleFile(t *testing.T, name string) ruleFile {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("yaml.Unmarshal(%s) error = %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no groups", name)
	}
	return rules
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
