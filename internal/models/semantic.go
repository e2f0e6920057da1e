// internal/models/semantic.go
package models

// SemanticAnalysis is the structured payload the model gateway produces for a
// question. Field names follow the analysis template's French JSON contract.
type SemanticAnalysis struct {
	Analyse    AnalyseSemantique `json:"analyse_semantique"`
	Structure  StructureRequete  `json:"structure_requete"`
	Validation map[string]any    `json:"validation,omitempty"`
}

type AnalyseSemantique struct {
	Intention    Intention    `json:"intention"`
	Temporalite  Temporalite  `json:"temporalite"`
	Entites      Entites      `json:"entites"`
	Contraintes  Contraintes  `json:"contraintes"`
	Informations Informations `json:"informations_demandees"`
}

type Intention struct {
	Action   string `json:"action"`
	Objectif string `json:"objectif"`
}

type Temporalite struct {
	Periode Periode       `json:"periode"`
	Dates   DatesExplicit `json:"dates"`
}

type Periode struct {
	Type      string `json:"type"`      // DYNAMIQUE or FIXE
	Precision string `json:"precision"` // JOUR, SEMAINE, MOIS, ANNEE
	Reference string `json:"reference"` // PASSE, PRESENT, FUTUR
}

type DatesExplicit struct {
	Debut string `json:"debut,omitempty"` // ISO date
	Fin   string `json:"fin,omitempty"`
}

type Entites struct {
	Principale  EntitePrincipale `json:"principale"`
	Secondaires []string         `json:"secondaires,omitempty"`
}

type EntitePrincipale struct {
	Nom       string   `json:"nom"`
	Attributs []string `json:"attributs,omitempty"`
}

type Contraintes struct {
	Explicites []string `json:"explicites,omitempty"`
	Implicites []string `json:"implicites,omitempty"`
}

type Informations struct {
	Champs      []string `json:"champs,omitempty"`
	Agregations []string `json:"agregations,omitempty"`
	Ordre       []string `json:"ordre,omitempty"`
}

type StructureRequete struct {
	Tables      []TableSpec     `json:"tables"`
	Conditions  []ConditionSpec `json:"conditions,omitempty"`
	Groupements []string        `json:"groupements,omitempty"`
	Ordre       []string        `json:"ordre,omitempty"`
}

type TableSpec struct {
	Nom               string   `json:"nom"`
	Alias             string   `json:"alias"`
	Type              string   `json:"type"` // PRINCIPALE or JOINTE
	Colonnes          []string `json:"colonnes"`
	ConditionJointure string   `json:"condition_jointure,omitempty"`
}

type ConditionSpec struct {
	Type       string         `json:"type"` // TEMPOREL, FILTRE, LOGIQUE
	Expression string         `json:"expression"`
	Parametres map[string]any `json:"parametres,omitempty"`
}
