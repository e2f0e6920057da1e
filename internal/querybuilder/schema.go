// internal/querybuilder/schema.go
package querybuilder

// analysisSchema is the structural contract for the semantic-analysis
// payload. Semantic invariants (non-empty main table, placeholder binding)
// are enforced in Go after this pass.
const analysisSchema = `{
  "type": "object",
  "required": ["analyse_semantique", "structure_requete"],
  "properties": {
    "analyse_semantique": {
      "type": "object",
      "required": ["intention", "temporalite", "entites"],
      "properties": {
        "intention": {
          "type": "object",
          "required": ["action", "objectif"],
          "properties": {
            "action": {"type": "string"},
            "objectif": {"type": "string"}
          }
        },
        "temporalite": {
          "type": "object",
          "required": ["periode"],
          "properties": {
            "periode": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {"type": "string", "enum": ["DYNAMIQUE", "FIXE"]},
                "precision": {"type": "string"},
                "reference": {"type": "string"}
              }
            },
            "dates": {
              "type": "object",
              "properties": {
                "debut": {"type": "string"},
                "fin": {"type": "string"}
              }
            }
          }
        },
        "entites": {
          "type": "object",
          "required": ["principale"],
          "properties": {
            "principale": {
              "type": "object",
              "required": ["nom"],
              "properties": {
                "nom": {"type": "string"},
                "attributs": {"type": "array", "items": {"type": "string"}}
              }
            },
            "secondaires": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "structure_requete": {
      "type": "object",
      "required": ["tables"],
      "properties": {
        "tables": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["nom", "alias", "type", "colonnes"],
            "properties": {
              "nom": {"type": "string", "minLength": 1},
              "alias": {"type": "string", "minLength": 1},
              "type": {"type": "string", "enum": ["PRINCIPALE", "JOINTE"]},
              "colonnes": {"type": "array", "minItems": 1, "items": {"type": "string"}},
              "condition_jointure": {"type": "string"}
            }
          }
        },
        "conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "expression"],
            "properties": {
              "type": {"type": "string", "enum": ["TEMPOREL", "FILTRE", "LOGIQUE"]},
              "expression": {"type": "string"},
              "parametres": {"type": "object"}
            }
          }
        },
        "groupements": {"type": "array", "items": {"type": "string"}},
        "ordre": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`
