package simulator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeRegulatoryImpact_FlagsTransactionOverLimit(t *testing.T) {
	changes := []byte(`{"transaction_limits":{"max_amount":1000}}`)
	data := []byte(`{"transactions":[{"amount":5000,"country":"US"},{"amount":500,"country":"US"}]}`)

	m := AnalyzeRegulatoryImpact(changes, data)
	assert.Equal(t, 1, m.TotalEntitiesAffected)
	assert.Equal(t, 1, m.HighRiskEntities)
	assert.Less(t, m.ComplianceScoreChange, 0.0)
}

func TestAnalyzeRegulatoryImpact_FlagsHighRiskCountry(t *testing.T) {
	changes := []byte(`{"high_risk_countries":["IR","KP"]}`)
	data := []byte(`{"transactions":[{"amount":100,"country":"IR"}]}`)

	m := AnalyzeRegulatoryImpact(changes, data)
	assert.Equal(t, 1, m.TotalEntitiesAffected)
	assert.Equal(t, 1, m.MediumRiskEntities)
	assert.Equal(t, 0, m.HighRiskEntities)
}

func TestAnalyzeRegulatoryImpact_BothTriggersStayHighRisk(t *testing.T) {
	changes := []byte(`{"transaction_limits":{"max_amount":1000},"high_risk_countries":["IR"]}`)
	data := []byte(`{"transactions":[{"amount":5000,"country":"IR"}]}`)

	m := AnalyzeRegulatoryImpact(changes, data)
	assert.Equal(t, 1, m.HighRiskEntities)
	assert.Equal(t, 0, m.MediumRiskEntities)
}

func TestAnalyzeRegulatoryImpact_PolicyImpactAddsCostAndTimeline(t *testing.T) {
	changes := []byte(`{"new_requirements":{"kyc":"enhanced"}}`)
	data := []byte(`{"policies":[{"name":"p1"},{"name":"p2"}]}`)

	m := AnalyzeRegulatoryImpact(changes, data)
	assert.Equal(t, 2, m.TotalEntitiesAffected)
	assert.Equal(t, minImplementationDays, m.EstimatedImplementationTimeDays)
	assert.Equal(t, 200.0, m.OperationalCostIncrease)
}

func TestAnalyzeRegulatoryImpact_RiskWeightingsAddsFlatDelta(t *testing.T) {
	changes := []byte(`{"risk_weightings":{"aml":0.5}}`)
	m := AnalyzeRegulatoryImpact(changes, []byte(`{}`))
	assert.InDelta(t, riskWeightingDelta, m.RiskScoreChange, 1e-9)
}

func TestAnalyzeRegulatoryImpact_CriticalViolationsAppendOnThresholds(t *testing.T) {
	var transactions []map[string]interface{}
	for i := 0; i < 12; i++ {
		transactions = append(transactions, map[string]interface{}{"amount": 5000, "country": "US"})
	}
	data, _ := json.Marshal(map[string]interface{}{"transactions": transactions})
	changes := []byte(`{"transaction_limits":{"max_amount":1000}}`)

	m := AnalyzeRegulatoryImpact(changes, data)
	assert.Contains(t, m.CriticalViolations, "High volume of high-risk entities affected")
}

func TestAnalyzeRegulatoryImpact_NoEntitiesAffectedLeavesComplianceScoreZero(t *testing.T) {
	m := AnalyzeRegulatoryImpact([]byte(`{}`), []byte(`{}`))
	assert.Equal(t, 0, m.TotalEntitiesAffected)
	assert.Equal(t, 0.0, m.ComplianceScoreChange)
	assert.Equal(t, minImplementationDays, m.EstimatedImplementationTimeDays)
}

func TestGenerateRecommendations_HighRiskTriggersMonitoring(t *testing.T) {
	m := ImpactMetrics{HighRiskEntities: 3}
	recs := GenerateRecommendations(m, "")
	assert.Contains(t, recs, "Increase monitoring frequency for high-risk entities")
}

func TestGenerateRecommendations_RegulatoryChangeAddsLegalCounsel(t *testing.T) {
	m := ImpactMetrics{}
	recs := GenerateRecommendations(m, "regulatory_change")
	assert.Contains(t, recs, "Engage legal counsel to review the regulatory change")
}

func TestGenerateRecommendations_LongTimelineAddsPhasedPlan(t *testing.T) {
	m := ImpactMetrics{EstimatedImplementationTimeDays: 90}
	recs := GenerateRecommendations(m, "")
	assert.Contains(t, recs, "Develop a phased implementation plan")
}

func TestGenerateRecommendations_EmptyMetricsYieldsNoRecommendations(t *testing.T) {
	recs := GenerateRecommendations(ImpactMetrics{}, "")
	assert.Empty(t, recs)
}
